package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/roamly/roamly-backend/internal/models"
)

// ErrVersionMismatch is returned when a version-checked write finds the
// trip at a different version than expected.
var ErrVersionMismatch = errors.New("trip version mismatch")

// TripPatch carries the mutable business fields of a trip. Owner,
// collaborators, identity and creation timestamp are absent by
// construction: those change only through dedicated operations.
//
// Patches are set-only: a nil field is left unchanged, so a value cannot
// be cleared back to NULL through a patch. Optional fields are instead
// emptied by writing their zero value (empty description, zero budget).
type TripPatch struct {
	Title       *string
	Destination *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Budget      *decimal.Decimal
	Tags        []string
	Status      *models.TripStatus

	// ExpectedVersion, when set, makes the update fail with
	// ErrVersionMismatch instead of overwriting a concurrent edit.
	ExpectedVersion *int64
}

type TripFilters struct {
	Status      []models.TripStatus
	Destination string
	StartAfter  *time.Time
	EndBefore   *time.Time
	MinBudget   *decimal.Decimal
	MaxBudget   *decimal.Decimal
	Tags        []string
	Limit       int
	Offset      int
}

type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) error
	FindByID(ctx context.Context, id string) (*models.Trip, error)
	UpdateFields(ctx context.Context, id string, patch *TripPatch, actorID string) (*models.Trip, error)
	ReplaceCollaborators(ctx context.Context, id string, collaborators []models.Collaborator, actorID string, expectedVersion int64) (*models.Trip, error)
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string, filters *TripFilters) ([]*models.Trip, int, error)
	ListPendingForUser(ctx context.Context, userID string) ([]*models.Trip, error)
	ListWithStalePendingInvites(ctx context.Context, invitedBefore time.Time) ([]*models.Trip, error)
}

type pgTripRepository struct {
	pool *pgxpool.Pool
}

func NewTripRepository(pool *pgxpool.Pool) TripRepository {
	return &pgTripRepository{pool: pool}
}

const tripColumns = `id, owner_id, title, destination, description, start_date, end_date,
	budget, tags, status, collaborators, version, last_modified_by, created_at, updated_at`

func (r *pgTripRepository) Create(ctx context.Context, trip *models.Trip) error {
	collaborators, err := json.Marshal(trip.Collaborators)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO trips (id, owner_id, title, destination, description, start_date, end_date,
			budget, tags, status, collaborators, version, last_modified_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		trip.ID, trip.OwnerID, trip.Title, trip.Destination, trip.Description,
		trip.StartDate, trip.EndDate, budgetArg(trip.Budget), trip.Tags, trip.Status,
		collaborators, trip.Version, trip.LastModifiedBy, trip.CreatedAt,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)
}

func (r *pgTripRepository) FindByID(ctx context.Context, id string) (*models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips WHERE id = $1`, tripColumns)
	trip, err := scanTrip(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trip, nil
}

func (r *pgTripRepository) UpdateFields(ctx context.Context, id string, patch *TripPatch, actorID string) (*models.Trip, error) {
	set := []string{"version = version + 1", "last_modified_by = $2", "updated_at = NOW()"}
	args := []interface{}{id, actorID}

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Destination != nil {
		add("destination", *patch.Destination)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.StartDate != nil {
		add("start_date", *patch.StartDate)
	}
	if patch.EndDate != nil {
		add("end_date", *patch.EndDate)
	}
	if patch.Budget != nil {
		add("budget", *patch.Budget)
	}
	if patch.Tags != nil {
		add("tags", patch.Tags)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}

	where := "id = $1"
	if patch.ExpectedVersion != nil {
		args = append(args, *patch.ExpectedVersion)
		where += fmt.Sprintf(" AND version = $%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE trips SET %s WHERE %s RETURNING %s`,
		strings.Join(set, ", "), where, tripColumns)

	trip, err := scanTrip(r.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		if patch.ExpectedVersion != nil {
			existing, ferr := r.FindByID(ctx, id)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return nil, ErrVersionMismatch
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trip, nil
}

func (r *pgTripRepository) ReplaceCollaborators(ctx context.Context, id string, collaborators []models.Collaborator, actorID string, expectedVersion int64) (*models.Trip, error) {
	data, err := json.Marshal(collaborators)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE trips
		SET collaborators = $2, version = version + 1, last_modified_by = $3, updated_at = NOW()
		WHERE id = $1 AND version = $4
		RETURNING %s
	`, tripColumns)

	trip, err := scanTrip(r.pool.QueryRow(ctx, query, id, data, actorID, expectedVersion))
	if err == pgx.ErrNoRows {
		existing, ferr := r.FindByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		if existing != nil {
			return nil, ErrVersionMismatch
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trip, nil
}

func (r *pgTripRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	return err
}

func (r *pgTripRepository) ListForUser(ctx context.Context, userID string, filters *TripFilters) ([]*models.Trip, int, error) {
	if filters == nil {
		filters = &TripFilters{}
	}

	where := []string{
		`(owner_id = $1 OR collaborators @> jsonb_build_array(jsonb_build_object('userId', $1::text, 'status', 'accepted')))`,
		`status <> 'archived'`,
	}
	args := []interface{}{userID}

	if len(filters.Status) > 0 {
		args = append(args, filters.Status)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filters.Destination != "" {
		args = append(args, "%"+filters.Destination+"%")
		where = append(where, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}
	if filters.StartAfter != nil {
		args = append(args, *filters.StartAfter)
		where = append(where, fmt.Sprintf("start_date >= $%d", len(args)))
	}
	if filters.EndBefore != nil {
		args = append(args, *filters.EndBefore)
		where = append(where, fmt.Sprintf("end_date <= $%d", len(args)))
	}
	if filters.MinBudget != nil {
		args = append(args, *filters.MinBudget)
		where = append(where, fmt.Sprintf("budget >= $%d", len(args)))
	}
	if filters.MaxBudget != nil {
		args = append(args, *filters.MaxBudget)
		where = append(where, fmt.Sprintf("budget <= $%d", len(args)))
	}
	if len(filters.Tags) > 0 {
		args = append(args, filters.Tags)
		where = append(where, fmt.Sprintf("tags && $%d", len(args)))
	}

	condition := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM trips WHERE %s`, condition)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	limitClause := fmt.Sprintf("LIMIT $%d", len(args))
	args = append(args, filters.Offset)
	offsetClause := fmt.Sprintf("OFFSET $%d", len(args))

	query := fmt.Sprintf(`SELECT %s FROM trips WHERE %s ORDER BY updated_at DESC %s %s`,
		tripColumns, condition, limitClause, offsetClause)

	trips, err := r.queryTrips(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

func (r *pgTripRepository) ListPendingForUser(ctx context.Context, userID string) ([]*models.Trip, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trips
		WHERE collaborators @> jsonb_build_array(jsonb_build_object('userId', $1::text, 'status', 'pending'))
		ORDER BY updated_at DESC
	`, tripColumns)
	return r.queryTrips(ctx, query, userID)
}

func (r *pgTripRepository) ListWithStalePendingInvites(ctx context.Context, invitedBefore time.Time) ([]*models.Trip, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trips
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(collaborators) c
			WHERE c->>'status' = 'pending' AND (c->>'invitedAt')::timestamptz < $1
		)
	`, tripColumns)
	return r.queryTrips(ctx, query, invitedBefore)
}

func (r *pgTripRepository) queryTrips(ctx context.Context, query string, args ...interface{}) ([]*models.Trip, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

func scanTrip(row pgx.Row) (*models.Trip, error) {
	trip := &models.Trip{}
	var collaborators []byte
	var budget decimal.NullDecimal
	err := row.Scan(
		&trip.ID, &trip.OwnerID, &trip.Title, &trip.Destination, &trip.Description,
		&trip.StartDate, &trip.EndDate, &budget, &trip.Tags, &trip.Status,
		&collaborators, &trip.Version, &trip.LastModifiedBy, &trip.CreatedAt, &trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if budget.Valid {
		trip.Budget = &budget.Decimal
	}
	if err := json.Unmarshal(collaborators, &trip.Collaborators); err != nil {
		return nil, err
	}
	return trip, nil
}

func budgetArg(budget *decimal.Decimal) interface{} {
	if budget == nil {
		return nil
	}
	return *budget
}
