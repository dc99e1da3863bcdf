package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/repository"
)

// ActivityService records and serves the append-only per-trip log.
type ActivityService interface {
	Log(ctx context.Context, tripID, actorID, action string, payload interface{})
	ListByTrip(ctx context.Context, tripID, userID string, limit, offset int) ([]*models.ActivityRecord, error)
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}

type activityService struct {
	activityRepo repository.ActivityRepository
	permSvc      PermissionService
}

func NewActivityService(activityRepo repository.ActivityRepository, permSvc PermissionService) ActivityService {
	return &activityService{activityRepo: activityRepo, permSvc: permSvc}
}

// Log writes one record synchronously with the mutation it describes.
// The mutation has already committed when Log runs, so a write failure
// is reported but cannot retract it.
func (s *activityService) Log(ctx context.Context, tripID, actorID, action string, payload interface{}) {
	record := &models.ActivityRecord{
		TripID:  tripID,
		ActorID: actorID,
		Action:  action,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			str := string(data)
			record.Payload = &str
		}
	}
	if err := s.activityRepo.Create(ctx, record); err != nil {
		log.Printf("[Activity] failed to record %s on trip %s: %v", action, tripID, err)
	}
}

func (s *activityService) ListByTrip(ctx context.Context, tripID, userID string, limit, offset int) ([]*models.ActivityRecord, error) {
	decision, err := s.permSvc.Check(ctx, tripID, userID, models.PermissionViewTrip)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, ErrNotFound
	}
	return s.activityRepo.ListByTrip(ctx, tripID, limit, offset)
}

func (s *activityService) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	return s.activityRepo.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
