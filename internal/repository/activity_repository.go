package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roamly/roamly-backend/internal/models"
)

type ActivityRepository interface {
	Create(ctx context.Context, record *models.ActivityRecord) error
	ListByTrip(ctx context.Context, tripID string, limit, offset int) ([]*models.ActivityRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type pgActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &pgActivityRepository{pool: pool}
}

func (r *pgActivityRepository) Create(ctx context.Context, record *models.ActivityRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	query := `
		INSERT INTO trip_activity (id, trip_id, actor_id, action, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return r.pool.QueryRow(ctx, query,
		record.ID, record.TripID, record.ActorID, record.Action, record.Payload,
	).Scan(&record.CreatedAt)
}

func (r *pgActivityRepository) ListByTrip(ctx context.Context, tripID string, limit, offset int) ([]*models.ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, trip_id, actor_id, action, payload, created_at
		FROM trip_activity WHERE trip_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, tripID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ActivityRecord
	for rows.Next() {
		record := &models.ActivityRecord{}
		if err := rows.Scan(
			&record.ID, &record.TripID, &record.ActorID, &record.Action,
			&record.Payload, &record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *pgActivityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM trip_activity WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}
