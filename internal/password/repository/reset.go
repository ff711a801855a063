package repository

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"clavionx/backend/internal/password/domain"
)

// ResetRepository persists password reset tokens, keyed by the digest of the link secret.
type ResetRepository interface {
	// ReplaceActive voids every valid token of t.UserID and inserts t, as one atomic step.
	ReplaceActive(ctx context.Context, t *domain.ResetToken, now time.Time) error
	// GetValid returns the valid token with tokenHash, or nil.
	GetValid(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error)
	// Consume marks the valid token with tokenHash used and returns it. Returns nil when no valid
	// token matches, so at most one caller can consume a token.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error)
	// DeleteStale deletes tokens expired before now and used tokens whose used_at is before usedBefore.
	DeleteStale(ctx context.Context, now, usedBefore time.Time) (int, error)
}

// MemoryResetRepository keeps reset tokens in process memory. Used for development and tests.
type MemoryResetRepository struct {
	mu     sync.Mutex
	tokens []*domain.ResetToken
}

// NewMemoryResetRepository returns an empty in-memory reset token repository.
func NewMemoryResetRepository() *MemoryResetRepository {
	return &MemoryResetRepository{}
}

func copyReset(t *domain.ResetToken) *domain.ResetToken {
	c := *t
	if t.UsedAt != nil {
		u := *t.UsedAt
		c.UsedAt = &u
	}
	return &c
}

func (r *MemoryResetRepository) find(tokenHash string, now time.Time) *domain.ResetToken {
	for _, tok := range r.tokens {
		if tok.IsValid(now) && subtle.ConstantTimeCompare([]byte(tok.TokenHash), []byte(tokenHash)) == 1 {
			return tok
		}
	}
	return nil
}

// ReplaceActive voids the user's valid tokens and appends t.
func (r *MemoryResetRepository) ReplaceActive(_ context.Context, t *domain.ResetToken, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range r.tokens {
		if tok.UserID == t.UserID && tok.IsValid(now) {
			at := now
			tok.UsedAt = &at
		}
	}
	r.tokens = append(r.tokens, copyReset(t))
	return nil
}

// GetValid returns a copy of the valid token with tokenHash, or nil.
func (r *MemoryResetRepository) GetValid(_ context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok := r.find(tokenHash, now); tok != nil {
		return copyReset(tok), nil
	}
	return nil, nil
}

// Consume marks the valid token with tokenHash used.
func (r *MemoryResetRepository) Consume(_ context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := r.find(tokenHash, now)
	if tok == nil {
		return nil, nil
	}
	at := now
	tok.UsedAt = &at
	return copyReset(tok), nil
}

// DeleteStale removes expired tokens and used tokens older than usedBefore.
func (r *MemoryResetRepository) DeleteStale(_ context.Context, now, usedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tokens[:0]
	n := 0
	for _, tok := range r.tokens {
		if tok.ExpiresAt.Before(now) || (tok.UsedAt != nil && tok.UsedAt.Before(usedBefore)) {
			n++
			continue
		}
		kept = append(kept, tok)
	}
	r.tokens = kept
	return n, nil
}
