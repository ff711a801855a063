package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clavionx/backend/internal/password/domain"
	"clavionx/backend/internal/password/repository"
	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/security"
)

const (
	// DefaultResetTTL is how long a reset link stays usable.
	DefaultResetTTL = time.Hour
	// DefaultResetRetention is how long used reset tokens are kept before cleanup.
	DefaultResetRetention = 24 * time.Hour
)

// ResetTokens issues and redeems single-use password reset secrets. The raw secret only leaves this
// service in the link sent to the user; the store keeps its SHA-256 digest.
type ResetTokens struct {
	repo  repository.ResetRepository
	clock clock.Clock
	ttl   time.Duration
}

// NewResetTokens returns a ResetTokens whose links expire after ttl (DefaultResetTTL when ttl <= 0).
func NewResetTokens(repo repository.ResetRepository, clk clock.Clock, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &ResetTokens{repo: repo, clock: clock.OrSystem(clk), ttl: ttl}
}

// TTL returns the lifetime of a new reset link.
func (s *ResetTokens) TTL() time.Duration { return s.ttl }

func hashResetSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue creates a reset secret for userID, voiding the user's earlier links.
func (s *ResetTokens) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	raw, err := security.NewSessionID()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate reset secret: %w", err)
	}
	now := s.clock.Now()
	tok := &domain.ResetToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: hashResetSecret(raw),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.ReplaceActive(ctx, tok, now); err != nil {
		return "", time.Time{}, fmt.Errorf("store reset token: %w", err)
	}
	return raw, tok.ExpiresAt, nil
}

// Lookup returns the user the secret was issued to, or "" when it is unknown, used or expired.
func (s *ResetTokens) Lookup(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	tok, err := s.repo.GetValid(ctx, hashResetSecret(raw), s.clock.Now())
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", nil
	}
	return tok.UserID, nil
}

// Redeem marks the secret used and returns its user. It returns "" when the secret is unknown,
// used or expired; of two concurrent calls at most one gets the user.
func (s *ResetTokens) Redeem(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	tok, err := s.repo.Consume(ctx, hashResetSecret(raw), s.clock.Now())
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", nil
	}
	return tok.UserID, nil
}

// Cleanup deletes expired tokens and used tokens older than retention. Returns the number removed.
func (s *ResetTokens) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultResetRetention
	}
	now := s.clock.Now()
	n, err := s.repo.DeleteStale(ctx, now, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("delete stale reset tokens: %w", err)
	}
	return n, nil
}
