package repository

import (
	"context"
	"time"

	"clavionx/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	// CreateEvictingOldest deactivates the user's oldest active sessions until fewer than max remain,
	// then inserts s. Count, evict and insert happen as one step serialized per user. It returns the
	// IDs of the evicted sessions.
	CreateEvictingOldest(ctx context.Context, s *domain.Session, max int, now time.Time) ([]string, error)
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Touch sets last_activity on an active session. Missing or inactive sessions are ignored.
	Touch(ctx context.Context, id string, at time.Time) error
	// Deactivate terminates one active session. Returns false when it was missing or already inactive.
	Deactivate(ctx context.Context, id string, at time.Time) (bool, error)
	// DeactivateAllExcept terminates the user's active sessions other than keepID ("" keeps none).
	DeactivateAllExcept(ctx context.Context, userID, keepID string, at time.Time) (int, error)
	// ListByUser returns the user's sessions newest first, only active ones when activeOnly is set.
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Session, error)
	// DeactivateIdle terminates active sessions whose last activity is before cutoff.
	DeactivateIdle(ctx context.Context, cutoff, at time.Time) (int, error)
	// DeleteEnded hard-deletes inactive sessions whose logout time is before cutoff.
	DeleteEnded(ctx context.Context, cutoff time.Time) (int, error)
}
