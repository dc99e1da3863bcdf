package cron

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roamly/roamly-backend/internal/config"
	"github.com/roamly/roamly-backend/internal/service"
)

// Scheduler handles scheduled maintenance tasks
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	services *service.Services
}

func NewScheduler(cfg *config.Config, services *service.Services) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		cfg:      cfg,
		services: services,
	}
}

// Start registers and starts the scheduled jobs
func (s *Scheduler) Start() {
	// Expire stale pending invitations - every day at 3 AM
	s.cron.AddFunc("0 3 * * *", func() {
		log.Println("[Cron] Running invitation expiry sweep...")
		s.expireStaleInvites()
	})

	// Trim old activity records - every Sunday at midnight
	s.cron.AddFunc("0 0 * * 0", func() {
		log.Println("[Cron] Running activity retention cleanup...")
		s.cleanupOldActivity()
	})

	s.cron.Start()
	log.Println("[Cron] Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Cron] Scheduler stopped")
}

func (s *Scheduler) expireStaleInvites() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := s.services.Collaboration.ExpireStaleInvites(ctx, s.cfg.InvitationTTL)
	if err != nil {
		log.Printf("[Cron] Invitation expiry sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[Cron] Expired %d stale invitations", expired)
	}
}

func (s *Scheduler) cleanupOldActivity() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := s.services.Activity.PurgeOlderThan(ctx, s.cfg.ActivityRetention)
	if err != nil {
		log.Printf("[Cron] Activity cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[Cron] Deleted %d old activity records", deleted)
	}
}
