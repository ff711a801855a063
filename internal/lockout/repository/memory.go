package repository

import (
	"context"
	"sync"

	"clavionx/backend/internal/lockout/domain"
	"clavionx/backend/internal/platform/keylock"
)

// MemoryRepository keeps records in process memory with a per-user lock around Update.
type MemoryRepository struct {
	locks *keylock.Striped

	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewMemoryRepository returns an empty in-memory lockout repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{locks: keylock.New(0), records: make(map[string]domain.Record)}
}

// Get returns a copy of the record for userID, or nil if none exists.
func (r *MemoryRepository) Get(_ context.Context, userID string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Update applies fn to the user's record while holding that user's lock.
func (r *MemoryRepository) Update(_ context.Context, userID string, fn func(rec *domain.Record) error) error {
	return r.locks.Do(userID, func() error {
		r.mu.RLock()
		rec, ok := r.records[userID]
		r.mu.RUnlock()
		if !ok {
			rec = domain.Record{UserID: userID}
		}
		if err := fn(&rec); err != nil {
			return err
		}
		r.mu.Lock()
		r.records[userID] = rec
		r.mu.Unlock()
		return nil
	})
}
