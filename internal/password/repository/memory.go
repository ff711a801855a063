package repository

import (
	"context"
	"sort"
	"sync"

	"clavionx/backend/internal/password/domain"
)

// MemoryRepository keeps password history in process memory. Used for development and tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string][]domain.HistoryEntry
}

// NewMemoryRepository returns an empty in-memory history repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string][]domain.HistoryEntry)}
}

// ListRecent returns the newest limit entries for userID, newest first.
func (r *MemoryRepository) ListRecent(_ context.Context, userID string, limit int) ([]*domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[userID]
	out := make([]*domain.HistoryEntry, 0, len(list))
	for i := range list {
		e := list[i]
		out = append(out, &e)
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendAndPrune inserts e and prunes the user's history to the newest keep entries.
func (r *MemoryRepository) AppendAndPrune(_ context.Context, e *domain.HistoryEntry, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.entries[e.UserID], *e)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].ChangedAt.Equal(list[j].ChangedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].ChangedAt.After(list[j].ChangedAt)
	})
	if keep >= 0 && len(list) > keep {
		list = list[:keep]
	}
	r.entries[e.UserID] = list
	return nil
}
