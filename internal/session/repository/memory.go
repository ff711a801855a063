package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"clavionx/backend/internal/session/domain"
)

// MemoryRepository keeps sessions in process memory behind one lock. Used for development and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	if s.LogoutTime != nil {
		t := *s.LogoutTime
		c.LogoutTime = &t
	}
	return &c
}

// CreateEvictingOldest evicts and inserts under the write lock.
func (r *MemoryRepository) CreateEvictingOldest(_ context.Context, s *domain.Session, max int, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*domain.Session
	for _, cur := range r.sessions {
		if cur.UserID == s.UserID && cur.Active {
			active = append(active, cur)
		}
	}
	var evicted []string
	if excess := len(active) - max + 1; max > 0 && excess > 0 {
		sort.Slice(active, func(i, j int) bool { return active[i].Older(active[j]) })
		for _, old := range active[:excess] {
			old.Deactivate(now)
			evicted = append(evicted, old.ID)
		}
	}
	r.sessions[s.ID] = copySession(s)
	return evicted, nil
}

// GetByID returns the session for id, or nil if not found.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

// Touch sets LastActivity on an active session.
func (r *MemoryRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.Active {
		s.LastActivity = at
	}
	return nil
}

// Deactivate terminates one active session.
func (r *MemoryRepository) Deactivate(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.Active {
		return false, nil
	}
	s.Deactivate(at)
	return true, nil
}

// DeactivateAllExcept terminates the user's active sessions other than keepID.
func (r *MemoryRepository) DeactivateAllExcept(_ context.Context, userID, keepID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active && s.ID != keepID {
			s.Deactivate(at)
			n++
		}
	}
	return n, nil
}

// ListByUser returns the user's sessions, newest login first.
func (r *MemoryRepository) ListByUser(_ context.Context, userID string, activeOnly bool) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && (s.Active || !activeOnly) {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Older(out[i]) })
	return out, nil
}

// DeactivateIdle terminates active sessions idle since before cutoff.
func (r *MemoryRepository) DeactivateIdle(_ context.Context, cutoff, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.Active && s.LastActivity.Before(cutoff) {
			s.Deactivate(at)
			n++
		}
	}
	return n, nil
}

// DeleteEnded removes inactive sessions that ended before cutoff.
func (r *MemoryRepository) DeleteEnded(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if !s.Active && s.LogoutTime != nil && s.LogoutTime.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
