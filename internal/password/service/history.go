// Package service enforces password reuse rules on top of the history repository.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"clavionx/backend/internal/password/domain"
	"clavionx/backend/internal/password/repository"
	"clavionx/backend/internal/platform/clock"
)

// ErrReused matches every *ReuseViolation via errors.Is.
var ErrReused = errors.New("password reused")

// ReuseViolation is returned when a new password equals the current one or a recent one.
// Message is safe to show to the acting user.
type ReuseViolation struct {
	Message string
}

func (e *ReuseViolation) Error() string { return e.Message }

// Is reports whether target is ErrReused.
func (e *ReuseViolation) Is(target error) bool { return target == ErrReused }

// PasswordHasher compares a raw password with a stored digest.
type PasswordHasher interface {
	Compare(hash string, password []byte) error
}

// HistoryService rejects reuse of the current password and of the last Size stored passwords.
type HistoryService struct {
	repo   repository.Repository
	hasher PasswordHasher
	clock  clock.Clock
	size   int
}

// NewHistoryService returns a HistoryService keeping size entries per user (5 when size <= 0).
func NewHistoryService(repo repository.Repository, hasher PasswordHasher, clk clock.Clock, size int) *HistoryService {
	if size <= 0 {
		size = 5
	}
	return &HistoryService{repo: repo, hasher: hasher, clock: clock.OrSystem(clk), size: size}
}

// Size returns the number of previous passwords checked.
func (s *HistoryService) Size() int { return s.size }

// ValidateNotCurrent fails when raw matches the user's current digest.
func (s *HistoryService) ValidateNotCurrent(currentDigest, raw string) error {
	if currentDigest != "" && s.hasher.Compare(currentDigest, []byte(raw)) == nil {
		return &ReuseViolation{Message: "New password must differ from current password"}
	}
	return nil
}

// ValidateNotInHistory fails when raw matches any of the user's last Size stored digests.
func (s *HistoryService) ValidateNotInHistory(ctx context.Context, userID, raw string) error {
	entries, err := s.repo.ListRecent(ctx, userID, s.size)
	if err != nil {
		return fmt.Errorf("password history: %w", err)
	}
	for _, e := range entries {
		if s.hasher.Compare(e.PasswordHash, []byte(raw)) == nil {
			return &ReuseViolation{Message: fmt.Sprintf("New password must not match last %d passwords", s.size)}
		}
	}
	return nil
}

// RecordChange appends newDigest to the user's history and prunes it to the newest Size entries.
func (s *HistoryService) RecordChange(ctx context.Context, userID, newDigest string) error {
	e := &domain.HistoryEntry{
		ID:           uuid.New().String(),
		UserID:       userID,
		PasswordHash: newDigest,
		ChangedAt:    s.clock.Now(),
	}
	if err := s.repo.AppendAndPrune(ctx, e, s.size); err != nil {
		return fmt.Errorf("password history: %w", err)
	}
	return nil
}
