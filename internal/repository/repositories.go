package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles every repository for wiring in main.
type Repositories struct {
	Trip     TripRepository
	Activity ActivityRepository
	User     UserRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Trip:     NewTripRepository(pool),
		Activity: NewActivityRepository(pool),
		User:     NewUserRepository(pool),
	}
}
