package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roamly/roamly-backend/internal/cache"
	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/notification"
	"github.com/roamly/roamly-backend/internal/repository"
)

// fakeTripRepo is an in-memory TripRepository with the same versioning
// semantics as the Postgres implementation: every write bumps the
// version, and version-checked writes fail with ErrVersionMismatch.
type fakeTripRepo struct {
	mu    sync.Mutex
	trips map[string]*models.Trip

	finds int // FindByID calls, to observe cache hit behaviour
	lists int // ListForUser calls

	beforeReplace func() // one-shot hook, runs before the next swap's version check
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{trips: map[string]*models.Trip{}}
}

func cloneTrip(t *models.Trip) *models.Trip {
	data, _ := json.Marshal(t)
	var out models.Trip
	_ = json.Unmarshal(data, &out)
	return &out
}

func (r *fakeTripRepo) Create(ctx context.Context, trip *models.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.trips[trip.ID]; exists {
		return errors.New("duplicate trip id")
	}
	trip.UpdatedAt = trip.CreatedAt
	r.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (r *fakeTripRepo) FindByID(ctx context.Context, id string) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	trip, ok := r.trips[id]
	if !ok {
		return nil, nil
	}
	return cloneTrip(trip), nil
}

func (r *fakeTripRepo) UpdateFields(ctx context.Context, id string, patch *repository.TripPatch, actorID string) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trip, ok := r.trips[id]
	if !ok {
		return nil, nil
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != trip.Version {
		return nil, repository.ErrVersionMismatch
	}
	if patch.Title != nil {
		trip.Title = *patch.Title
	}
	if patch.Destination != nil {
		trip.Destination = *patch.Destination
	}
	if patch.Description != nil {
		trip.Description = patch.Description
	}
	if patch.StartDate != nil {
		trip.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		trip.EndDate = patch.EndDate
	}
	if patch.Budget != nil {
		trip.Budget = patch.Budget
	}
	if patch.Tags != nil {
		trip.Tags = patch.Tags
	}
	if patch.Status != nil {
		trip.Status = *patch.Status
	}
	trip.Version++
	trip.LastModifiedBy = actorID
	trip.UpdatedAt = time.Now().UTC()
	return cloneTrip(trip), nil
}

func (r *fakeTripRepo) ReplaceCollaborators(ctx context.Context, id string, collaborators []models.Collaborator, actorID string, expectedVersion int64) (*models.Trip, error) {
	r.mu.Lock()
	hook := r.beforeReplace
	r.beforeReplace = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	trip, ok := r.trips[id]
	if !ok {
		return nil, nil
	}
	if trip.Version != expectedVersion {
		return nil, repository.ErrVersionMismatch
	}
	trip.Collaborators = append([]models.Collaborator(nil), collaborators...)
	trip.Version++
	trip.LastModifiedBy = actorID
	trip.UpdatedAt = time.Now().UTC()
	return cloneTrip(trip), nil
}

func (r *fakeTripRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trips, id)
	return nil
}

func (r *fakeTripRepo) ListForUser(ctx context.Context, userID string, filters *repository.TripFilters) ([]*models.Trip, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++

	var matched []*models.Trip
	for _, trip := range r.trips {
		if trip.OwnerID != userID && trip.AcceptedCollaborator(userID) == nil {
			continue
		}
		if trip.Status == models.TripStatusArchived {
			continue
		}
		if filters.Destination != "" &&
			!strings.Contains(strings.ToLower(trip.Destination), strings.ToLower(filters.Destination)) {
			continue
		}
		matched = append(matched, cloneTrip(trip))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	if filters.Offset > len(matched) {
		return nil, total, nil
	}
	matched = matched[filters.Offset:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, total, nil
}

func (r *fakeTripRepo) ListPendingForUser(ctx context.Context, userID string) ([]*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.Trip
	for _, trip := range r.trips {
		if entry := trip.Collaborator(userID); entry != nil && entry.Status == models.CollaboratorPending {
			matched = append(matched, cloneTrip(trip))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (r *fakeTripRepo) ListWithStalePendingInvites(ctx context.Context, invitedBefore time.Time) ([]*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.Trip
	for _, trip := range r.trips {
		for i := range trip.Collaborators {
			c := trip.Collaborators[i]
			if c.Status == models.CollaboratorPending && c.InvitedAt.Before(invitedBefore) {
				matched = append(matched, cloneTrip(trip))
				break
			}
		}
	}
	return matched, nil
}

// backdateInvite rewrites the invitation timestamp of a pending entry,
// used to simulate stale invitations.
func (r *fakeTripRepo) backdateInvite(tripID, userID string, invitedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trip := r.trips[tripID]
	for i := range trip.Collaborators {
		if trip.Collaborators[i].UserID == userID {
			trip.Collaborators[i].InvitedAt = invitedAt
		}
	}
}

type fakeActivityRepo struct {
	mu      sync.Mutex
	records []*models.ActivityRecord
}

func newFakeActivityRepo() *fakeActivityRepo {
	return &fakeActivityRepo{}
}

func (r *fakeActivityRepo) Create(ctx context.Context, record *models.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *fakeActivityRepo) ListByTrip(ctx context.Context, tripID string, limit, offset int) ([]*models.ActivityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.ActivityRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].TripID == tripID {
			matched = append(matched, r.records[i])
		}
	}
	if offset > len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *fakeActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.ActivityRecord
	deleted := 0
	for _, record := range r.records {
		if record.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	r.records = kept
	return deleted, nil
}

// actions returns the recorded action names for a trip in order.
func (r *fakeActivityRepo) actions(tripID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var actions []string
	for _, record := range r.records {
		if record.TripID == tripID {
			actions = append(actions, record.Action)
		}
	}
	return actions
}

type fakeUserRepo struct {
	users map[string]bool
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]bool{}}
	for _, id := range ids {
		r.users[id] = true
	}
	return r
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if !r.users[id] {
		return nil, nil
	}
	return &models.User{ID: id}, nil
}

func (r *fakeUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	return r.users[id], nil
}

// failingStore simulates a cache backend outage: every operation errors.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("cache backend down")
}

func (failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("cache backend down")
}

func (failingStore) Delete(ctx context.Context, keys ...string) error {
	return errors.New("cache backend down")
}

func (failingStore) DeletePattern(ctx context.Context, pattern string) error {
	return errors.New("cache backend down")
}

// testEnv wires the services against in-memory fakes.
type testEnv struct {
	tripRepo     *fakeTripRepo
	activityRepo *fakeActivityRepo
	cache        *cache.Coordinator

	perm     PermissionService
	activity ActivityService
	trip     TripService
	collab   CollaborationService
}

func newTestEnv(userIDs ...string) *testEnv {
	return newTestEnvWithStore(cache.NewMemoryStore(), userIDs...)
}

func newTestEnvWithStore(store cache.Store, userIDs ...string) *testEnv {
	coordinator := cache.NewCoordinator(store, cache.Config{
		Enabled:       true,
		TripTTL:       time.Minute,
		ListTTL:       time.Minute,
		PermissionTTL: time.Minute,
	})

	tripRepo := newFakeTripRepo()
	activityRepo := newFakeActivityRepo()
	userRepo := newFakeUserRepo(userIDs...)
	notifSvc := notification.NewService()

	permSvc := NewPermissionService(tripRepo, coordinator)
	activitySvc := NewActivityService(activityRepo, permSvc)

	return &testEnv{
		tripRepo:     tripRepo,
		activityRepo: activityRepo,
		cache:        coordinator,
		perm:         permSvc,
		activity:     activitySvc,
		trip:         NewTripService(tripRepo, permSvc, activitySvc, coordinator, notifSvc),
		collab:       NewCollaborationService(tripRepo, userRepo, permSvc, activitySvc, coordinator, notifSvc),
	}
}

func (e *testEnv) mustCreateTrip(ctx context.Context, ownerID, title string) *models.Trip {
	trip, err := e.trip.Create(ctx, ownerID, &CreateTripInput{
		Title:       title,
		Destination: "Lisbon",
	})
	if err != nil {
		panic(err)
	}
	return trip
}
