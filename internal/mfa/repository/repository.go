package repository

import (
	"context"
	"time"

	"clavionx/backend/internal/mfa/domain"
)

// Repository defines persistence for two-factor tokens. Every method that changes a token is a single
// atomic step so concurrent requests for one user cannot double-consume or lose attempt increments.
type Repository interface {
	// ReplaceActive marks every valid token of t.UserID used (without counting an attempt) and inserts t.
	ReplaceActive(ctx context.Context, t *domain.Token, now time.Time) error
	// Consume marks the valid token of userID whose code hash equals codeHash as used and returns it.
	// Returns nil when no valid token matches.
	Consume(ctx context.Context, userID, codeHash string, now time.Time) (*domain.Token, error)
	// IncrementAttempts adds one attempt to the valid token matching codeHash, or else to the user's
	// newest valid token. Returns the updated token, or nil when the user has no valid token.
	IncrementAttempts(ctx context.Context, userID, codeHash string, now time.Time) (*domain.Token, error)
	// InvalidateActive marks every valid token of userID used and returns how many were changed.
	InvalidateActive(ctx context.Context, userID string, now time.Time) (int, error)
	// Burn marks the token used.
	Burn(ctx context.Context, id string, now time.Time) error
	// Latest returns the user's most recently created token, or nil.
	Latest(ctx context.Context, userID string) (*domain.Token, error)
	// HasValid reports whether the user has a valid token at now.
	HasValid(ctx context.Context, userID string, now time.Time) (bool, error)
	// DeleteStale deletes tokens expired before now and used tokens whose used_at is before usedBefore.
	DeleteStale(ctx context.Context, now, usedBefore time.Time) (int, error)
}
