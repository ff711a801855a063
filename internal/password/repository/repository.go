package repository

import (
	"context"

	"clavionx/backend/internal/password/domain"
)

// Repository persists password history entries.
type Repository interface {
	// ListRecent returns the newest limit entries for userID, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]*domain.HistoryEntry, error)
	// AppendAndPrune inserts e and then deletes all but the newest keep entries for e.UserID, as one atomic step.
	AppendAndPrune(ctx context.Context, e *domain.HistoryEntry, keep int) error
}
