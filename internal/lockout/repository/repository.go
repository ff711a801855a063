package repository

import (
	"context"

	"clavionx/backend/internal/lockout/domain"
)

// Repository persists failed-login records, one per user.
type Repository interface {
	// Get returns the record for userID, or nil if none exists. It never mutates state.
	Get(ctx context.Context, userID string) (*domain.Record, error)
	// Update loads the record for userID (a zero record when absent), calls fn and persists the result
	// when fn returns nil. Concurrent Updates for the same user are serialized.
	Update(ctx context.Context, userID string, fn func(rec *domain.Record) error) error
}
