package service

import (
	"github.com/roamly/roamly-backend/internal/cache"
	"github.com/roamly/roamly-backend/internal/config"
	"github.com/roamly/roamly-backend/internal/notification"
	"github.com/roamly/roamly-backend/internal/repository"
)

// Services bundles every service for wiring in main.
type Services struct {
	Auth          AuthService
	Permission    PermissionService
	Activity      ActivityService
	Trip          TripService
	Collaboration CollaborationService
}

type ServiceDeps struct {
	Config   *config.Config
	Repos    *repository.Repositories
	Cache    *cache.Coordinator
	NotifSvc *notification.Service
}

func NewServices(deps *ServiceDeps) *Services {
	permSvc := NewPermissionService(deps.Repos.Trip, deps.Cache)
	activitySvc := NewActivityService(deps.Repos.Activity, permSvc)

	return &Services{
		Auth:       NewAuthService(deps.Config.JWTSecret),
		Permission: permSvc,
		Activity:   activitySvc,
		Trip: NewTripService(
			deps.Repos.Trip, permSvc, activitySvc, deps.Cache, deps.NotifSvc,
		),
		Collaboration: NewCollaborationService(
			deps.Repos.Trip, deps.Repos.User, permSvc, activitySvc, deps.Cache, deps.NotifSvc,
		),
	}
}
