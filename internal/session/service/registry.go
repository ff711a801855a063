// Package service implements the session registry: per-user session limits, termination and sweeps.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"clavionx/backend/internal/device"
	"clavionx/backend/internal/metrics"
	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/security"
	"clavionx/backend/internal/session/domain"
	"clavionx/backend/internal/session/repository"
)

const (
	DefaultMaxSessionsPerUser = 5
	DefaultInactivityTimeout  = 24 * time.Hour
	DefaultRetention          = 30 * 24 * time.Hour
)

// ErrSessionNotFound is returned by Get when no session has the given ID.
var ErrSessionNotFound = errors.New("session not found")

// Registry owns session lifecycle.
type Registry struct {
	repo        repository.Repository
	clk         clock.Clock
	maxSessions int
	newID       func() (string, error)
}

// NewRegistry returns a Registry allowing maxSessions active sessions per user (default 5 when <= 0).
func NewRegistry(repo repository.Repository, clk clock.Clock, maxSessions int) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessionsPerUser
	}
	return &Registry{repo: repo, clk: clock.OrSystem(clk), maxSessions: maxSessions, newID: security.NewSessionID}
}

// MaxSessions returns the per-user active session limit.
func (r *Registry) MaxSessions() int { return r.maxSessions }

// Create starts a session with a fresh ID. When the user is at the limit the oldest active session
// is terminated in the same step.
func (r *Registry) Create(ctx context.Context, userID, ipAddress, userAgent string) (*domain.Session, error) {
	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := r.clk.Now()
	s := &domain.Session{
		ID:           id,
		UserID:       userID,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		DeviceLabel:  device.Label(userAgent),
		LoginTime:    now,
		LastActivity: now,
		Active:       true,
	}
	evicted, err := r.repo.CreateEvictingOldest(ctx, s, r.maxSessions, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if len(evicted) > 0 {
		log.Printf("session: user %s at limit of %d, evicted %d oldest session(s)", userID, r.maxSessions, len(evicted))
		metrics.SessionsEvicted.Add(float64(len(evicted)))
	}
	metrics.SessionsCreated.Inc()
	return s, nil
}

// Get returns the session for id or ErrSessionNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Session, error) {
	s, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// IsActive reports whether id names an active session.
func (r *Registry) IsActive(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	s, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	return s != nil && s.Active, nil
}

// Touch records activity on an active session. Missing or inactive sessions are ignored.
func (r *Registry) Touch(ctx context.Context, id string) error {
	if err := r.repo.Touch(ctx, id, r.clk.Now()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Terminate ends one session. Terminating a missing or already ended session is not an error.
func (r *Registry) Terminate(ctx context.Context, id string) error {
	ok, err := r.repo.Deactivate(ctx, id, r.clk.Now())
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	if ok {
		metrics.SessionsTerminated.WithLabelValues("logout").Inc()
	}
	return nil
}

// TerminateAllExcept ends every active session of the user other than keepID.
func (r *Registry) TerminateAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	n, err := r.repo.DeactivateAllExcept(ctx, userID, keepID, r.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("terminate sessions: %w", err)
	}
	metrics.SessionsTerminated.WithLabelValues("others").Add(float64(n))
	return n, nil
}

// TerminateAll ends every active session of the user.
func (r *Registry) TerminateAll(ctx context.Context, userID string) (int, error) {
	n, err := r.repo.DeactivateAllExcept(ctx, userID, "", r.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("terminate sessions: %w", err)
	}
	metrics.SessionsTerminated.WithLabelValues("all").Add(float64(n))
	return n, nil
}

// ListActive returns the user's active sessions, newest first.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.repo.ListByUser(ctx, userID, true)
}

// ListAll returns all of the user's sessions, newest first.
func (r *Registry) ListAll(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.repo.ListByUser(ctx, userID, false)
}

// CleanupInactive terminates active sessions with no activity for longer than timeout.
func (r *Registry) CleanupInactive(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	now := r.clk.Now()
	n, err := r.repo.DeactivateIdle(ctx, now.Add(-timeout), now)
	if err != nil {
		return 0, fmt.Errorf("deactivate idle sessions: %w", err)
	}
	metrics.SessionsTerminated.WithLabelValues("inactive").Add(float64(n))
	return n, nil
}

// PurgeOld deletes sessions that ended more than retention ago.
func (r *Registry) PurgeOld(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := r.repo.DeleteEnded(ctx, r.clk.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}
