package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roamly/roamly-backend/internal/cache"
	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/notification"
	"github.com/roamly/roamly-backend/internal/repository"
)

// Every mutating operation composes the same fixed order:
// authorize → mutate → log activity → invalidate cache → publish.
// Authorizing after mutating would let an unauthorized write take effect,
// so the order is never permuted.

type CreateTripInput struct {
	Title       string
	Destination string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Budget      *decimal.Decimal
	Tags        []string
}

type UpdateTripInput struct {
	Title       *string
	Destination *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Budget      *decimal.Decimal
	Tags        []string
	Status      *models.TripStatus

	// ExpectedVersion lets callers detect (not auto-resolve) conflicting
	// edits. When unset the write is last-writer-wins.
	ExpectedVersion *int64
}

type PageInfo struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// tripListPage is the cached shape of one trip-list query.
type tripListPage struct {
	Trips []*models.Trip `json:"trips"`
	Total int            `json:"total"`
}

type TripService interface {
	Create(ctx context.Context, ownerID string, input *CreateTripInput) (*models.Trip, error)
	Get(ctx context.Context, tripID, userID string) (*models.Trip, error)
	Update(ctx context.Context, tripID, userID string, input *UpdateTripInput) (*models.Trip, error)
	Delete(ctx context.Context, tripID, userID string) error
	ListForUser(ctx context.Context, userID string, filters *repository.TripFilters) ([]*models.Trip, *PageInfo, error)
	Search(ctx context.Context, userID, query string, limit, offset int) ([]*models.Trip, *PageInfo, error)
}

type tripService struct {
	tripRepo    repository.TripRepository
	permSvc     PermissionService
	activitySvc ActivityService
	cache       *cache.Coordinator
	notifSvc    *notification.Service
}

func NewTripService(
	tripRepo repository.TripRepository,
	permSvc PermissionService,
	activitySvc ActivityService,
	coordinator *cache.Coordinator,
	notifSvc *notification.Service,
) TripService {
	return &tripService{
		tripRepo:    tripRepo,
		permSvc:     permSvc,
		activitySvc: activitySvc,
		cache:       coordinator,
		notifSvc:    notifSvc,
	}
}

func (s *tripService) Create(ctx context.Context, ownerID string, input *CreateTripInput) (*models.Trip, error) {
	if input == nil || ownerID == "" {
		return nil, ErrValidation
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Destination) == "" {
		return nil, ErrValidation
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return nil, ErrValidation
	}
	if input.Budget != nil && input.Budget.IsNegative() {
		return nil, ErrValidation
	}

	now := time.Now().UTC()
	trip := &models.Trip{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Title:          strings.TrimSpace(input.Title),
		Destination:    strings.TrimSpace(input.Destination),
		Description:    input.Description,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		Budget:         input.Budget,
		Tags:           input.Tags,
		Status:         models.TripStatusPlanning,
		Collaborators:  []models.Collaborator{models.NewOwnerCollaborator(ownerID, now)},
		Version:        1,
		LastModifiedBy: ownerID,
		CreatedAt:      now,
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.activitySvc.Log(ctx, trip.ID, ownerID, models.ActivityTripCreated, map[string]string{"title": trip.Title})
	s.cache.InvalidateUserTrips(ctx, ownerID)
	s.notifSvc.PublishTripEvent(trip.ID, notification.EventTripCreated, trip, ownerID)

	return trip, nil
}

// Get returns NotFound both when the trip is absent and when the caller
// lacks view access, so callers cannot probe for trip existence.
func (s *tripService) Get(ctx context.Context, tripID, userID string) (*models.Trip, error) {
	decision, err := s.permSvc.Check(ctx, tripID, userID, models.PermissionViewTrip)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, ErrNotFound
	}
	return loadTripCached(ctx, s.cache, s.tripRepo, tripID)
}

func (s *tripService) Update(ctx context.Context, tripID, userID string, input *UpdateTripInput) (*models.Trip, error) {
	if input == nil {
		return nil, ErrValidation
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, ErrValidation
	}
	if input.Destination != nil && strings.TrimSpace(*input.Destination) == "" {
		return nil, ErrValidation
	}
	if input.Budget != nil && input.Budget.IsNegative() {
		return nil, ErrValidation
	}
	if input.Status != nil {
		switch *input.Status {
		case models.TripStatusPlanning, models.TripStatusActive, models.TripStatusCompleted, models.TripStatusArchived:
		default:
			return nil, ErrValidation
		}
	}

	// Authoritative read: the pre-mutation accepted set drives fan-out.
	before, err := s.tripRepo.FindByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load trip: %w", err)
	}
	if before == nil {
		return nil, ErrNotFound
	}

	decision, err := s.permSvc.Check(ctx, tripID, userID, models.PermissionEditTrip)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, ErrPermissionDenied
	}

	patch := &repository.TripPatch{
		Title:           input.Title,
		Destination:     input.Destination,
		Description:     input.Description,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Budget:          input.Budget,
		Tags:            input.Tags,
		Status:          input.Status,
		ExpectedVersion: input.ExpectedVersion,
	}
	trip, err := s.tripRepo.UpdateFields(ctx, tripID, patch, userID)
	if errors.Is(err, repository.ErrVersionMismatch) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update trip: %w", err)
	}
	if trip == nil {
		return nil, ErrNotFound
	}

	s.activitySvc.Log(ctx, tripID, userID, models.ActivityTripUpdated, changedFields(input))
	s.cache.InvalidateTripAndFanOut(ctx, tripID, before.AcceptedCollaboratorIDs())
	s.notifSvc.PublishTripEvent(tripID, notification.EventTripUpdated, trip, userID)

	return trip, nil
}

func (s *tripService) Delete(ctx context.Context, tripID, userID string) error {
	// The accepted-collaborator set must be captured before deletion to
	// drive cache invalidation afterwards.
	trip, err := s.tripRepo.FindByID(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load trip: %w", err)
	}
	if trip == nil {
		return ErrNotFound
	}

	decision, err := s.permSvc.Check(ctx, tripID, userID, models.PermissionDeleteTrip)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return ErrPermissionDenied
	}

	acceptedIDs := trip.AcceptedCollaboratorIDs()

	if err := s.tripRepo.Delete(ctx, tripID); err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}

	s.activitySvc.Log(ctx, tripID, userID, models.ActivityTripDeleted, map[string]string{"title": trip.Title})
	s.cache.InvalidateTripAndFanOut(ctx, tripID, acceptedIDs)
	for _, collaboratorID := range acceptedIDs {
		s.cache.InvalidatePermissions(ctx, tripID, collaboratorID)
	}
	s.notifSvc.PublishTripEvent(tripID, notification.EventTripDeleted, map[string]string{"tripId": tripID}, userID)

	return nil
}

func (s *tripService) ListForUser(ctx context.Context, userID string, filters *repository.TripFilters) ([]*models.Trip, *PageInfo, error) {
	if userID == "" {
		return nil, nil, ErrValidation
	}
	if filters == nil {
		filters = &repository.TripFilters{}
	}
	if filters.Limit <= 0 {
		filters.Limit = 20
	}

	key := cache.UserTripsKey(userID, cache.Fingerprint(filters))
	var page tripListPage
	err := s.cache.GetOrLoad(ctx, key, s.cache.ListTTL(), &page, func(ctx context.Context) (interface{}, error) {
		trips, total, err := s.tripRepo.ListForUser(ctx, userID, filters)
		if err != nil {
			return nil, err
		}
		return tripListPage{Trips: trips, Total: total}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list trips: %w", err)
	}

	info := &PageInfo{
		Total:   page.Total,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
		HasMore: filters.Offset+len(page.Trips) < page.Total,
	}
	return page.Trips, info, nil
}

func (s *tripService) Search(ctx context.Context, userID, query string, limit, offset int) ([]*models.Trip, *PageInfo, error) {
	return s.ListForUser(ctx, userID, &repository.TripFilters{
		Destination: strings.TrimSpace(query),
		Limit:       limit,
		Offset:      offset,
	})
}

func changedFields(input *UpdateTripInput) map[string]interface{} {
	fields := []string{}
	if input.Title != nil {
		fields = append(fields, "title")
	}
	if input.Destination != nil {
		fields = append(fields, "destination")
	}
	if input.Description != nil {
		fields = append(fields, "description")
	}
	if input.StartDate != nil {
		fields = append(fields, "startDate")
	}
	if input.EndDate != nil {
		fields = append(fields, "endDate")
	}
	if input.Budget != nil {
		fields = append(fields, "budget")
	}
	if input.Tags != nil {
		fields = append(fields, "tags")
	}
	if input.Status != nil {
		fields = append(fields, "status")
	}
	return map[string]interface{}{"changedFields": fields}
}
