package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/roamly/roamly-backend/internal/cache"
	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/repository"
)

// Decision is the outcome of a permission check. Role is only set when
// the user holds an accepted collaborator entry on the trip.
type Decision struct {
	Allowed bool        `json:"allowed"`
	Role    models.Role `json:"role,omitempty"`
}

// PermissionService resolves whether a user may perform an action on a
// trip. It is read-only and never mutates trip state. Decisions are
// cached with a short TTL: permissions change far less often than they
// are read.
type PermissionService interface {
	Check(ctx context.Context, tripID, userID string, permission models.Permission) (Decision, error)
}

type permissionService struct {
	tripRepo repository.TripRepository
	cache    *cache.Coordinator
}

func NewPermissionService(tripRepo repository.TripRepository, coordinator *cache.Coordinator) PermissionService {
	return &permissionService{tripRepo: tripRepo, cache: coordinator}
}

// Check is default-deny: any lookup failure yields allowed=false, never
// true. A missing trip or missing accepted entry is an ordinary deny; an
// infrastructure failure is a deny with the error attached.
func (s *permissionService) Check(ctx context.Context, tripID, userID string, permission models.Permission) (Decision, error) {
	if tripID == "" || userID == "" || permission == "" {
		return Decision{}, nil
	}

	key := cache.PermissionKey(tripID, userID, string(permission))
	var decision Decision
	err := s.cache.GetOrLoad(ctx, key, s.cache.PermissionTTL(), &decision, func(ctx context.Context) (interface{}, error) {
		trip, err := loadTripCached(ctx, s.cache, s.tripRepo, tripID)
		if errors.Is(err, ErrNotFound) {
			return Decision{}, nil
		}
		if err != nil {
			return nil, err
		}
		role, ok := trip.RoleOf(userID)
		if !ok {
			return Decision{}, nil
		}
		return Decision{
			Allowed: models.RoleHasPermission(role, permission),
			Role:    role,
		}, nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("permission check: %w", err)
	}
	return decision, nil
}

// loadTripCached reads a trip through the trip cache namespace, falling
// back to the store on a miss. Absent trips are never cached.
func loadTripCached(ctx context.Context, coordinator *cache.Coordinator, tripRepo repository.TripRepository, tripID string) (*models.Trip, error) {
	var trip models.Trip
	err := coordinator.GetOrLoad(ctx, cache.TripKey(tripID), coordinator.TripTTL(), &trip, func(ctx context.Context) (interface{}, error) {
		loaded, err := tripRepo.FindByID(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, ErrNotFound
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return &trip, nil
}
