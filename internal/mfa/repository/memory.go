package repository

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"clavionx/backend/internal/mfa/domain"
)

// MemoryRepository keeps tokens in process memory under one mutex. Used for development and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens []*domain.Token // insertion order
}

// NewMemoryRepository returns an empty in-memory token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func copyToken(t *domain.Token) *domain.Token {
	c := *t
	if t.UsedAt != nil {
		u := *t.UsedAt
		c.UsedAt = &u
	}
	return &c
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ReplaceActive supersedes the user's valid tokens and appends t.
func (r *MemoryRepository) ReplaceActive(_ context.Context, t *domain.Token, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range r.tokens {
		if tok.UserID == t.UserID && tok.IsValid(now) {
			tok.Used = true
			at := now
			tok.UsedAt = &at
		}
	}
	r.tokens = append(r.tokens, copyToken(t))
	return nil
}

// Consume marks the newest valid matching token used.
func (r *MemoryRepository) Consume(_ context.Context, userID, codeHash string, now time.Time) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.tokens) - 1; i >= 0; i-- {
		tok := r.tokens[i]
		if tok.UserID == userID && tok.IsValid(now) && hashEqual(tok.CodeHash, codeHash) {
			tok.Used = true
			at := now
			tok.UsedAt = &at
			return copyToken(tok), nil
		}
	}
	return nil, nil
}

// IncrementAttempts bumps attempts on the matching valid token, else on the newest valid token.
func (r *MemoryRepository) IncrementAttempts(_ context.Context, userID, codeHash string, now time.Time) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var target *domain.Token
	for i := len(r.tokens) - 1; i >= 0; i-- {
		tok := r.tokens[i]
		if tok.UserID != userID || !tok.IsValid(now) {
			continue
		}
		if hashEqual(tok.CodeHash, codeHash) {
			target = tok
			break
		}
		if target == nil {
			target = tok
		}
	}
	if target == nil {
		return nil, nil
	}
	target.Attempts++
	return copyToken(target), nil
}

// InvalidateActive marks the user's valid tokens used.
func (r *MemoryRepository) InvalidateActive(_ context.Context, userID string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tok := range r.tokens {
		if tok.UserID == userID && tok.IsValid(now) {
			tok.Used = true
			at := now
			tok.UsedAt = &at
			n++
		}
	}
	return n, nil
}

// Burn marks the token used.
func (r *MemoryRepository) Burn(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range r.tokens {
		if tok.ID == id && !tok.Used {
			tok.Used = true
			at := now
			tok.UsedAt = &at
		}
	}
	return nil
}

// Latest returns the user's newest token, or nil.
func (r *MemoryRepository) Latest(_ context.Context, userID string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.tokens) - 1; i >= 0; i-- {
		if r.tokens[i].UserID == userID {
			return copyToken(r.tokens[i]), nil
		}
	}
	return nil, nil
}

// HasValid reports whether the user has a valid token.
func (r *MemoryRepository) HasValid(_ context.Context, userID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range r.tokens {
		if tok.UserID == userID && tok.IsValid(now) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteStale removes expired tokens and used tokens older than usedBefore.
func (r *MemoryRepository) DeleteStale(_ context.Context, now, usedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tokens[:0]
	n := 0
	for _, tok := range r.tokens {
		stale := tok.ExpiresAt.Before(now) || (tok.Used && tok.UsedAt != nil && tok.UsedAt.Before(usedBefore))
		if stale {
			n++
			continue
		}
		kept = append(kept, tok)
	}
	r.tokens = kept
	return n, nil
}
