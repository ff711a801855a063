// Package service implements the sliding-window login attempt guard.
package service

import (
	"context"
	"fmt"
	"strings"

	"clavionx/backend/internal/lockout/domain"
	"clavionx/backend/internal/lockout/repository"
	"clavionx/backend/internal/platform/clock"
)

// AccountResolver maps a normalized login (username or e-mail) to the owning user's ID.
// found is false for unknown accounts.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, login string) (userID string, found bool, err error)
}

// Guard tracks failed logins per account and locks accounts that fail too often inside the window.
type Guard struct {
	repo     repository.Repository
	resolver AccountResolver
	clock    clock.Clock
	policy   domain.Policy
}

// NewGuard returns a Guard. Zero policy fields fall back to the defaults.
func NewGuard(repo repository.Repository, resolver AccountResolver, clk clock.Clock, policy domain.Policy) *Guard {
	def := domain.DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = def.LockDuration
	}
	return &Guard{repo: repo, resolver: resolver, clock: clock.OrSystem(clk), policy: policy}
}

// NormalizeAccount trims and lower-cases a login so "Alice " and "alice" share one record.
func NormalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

func (g *Guard) resolve(ctx context.Context, account string) (string, bool, error) {
	login := NormalizeAccount(account)
	if login == "" {
		return "", false, nil
	}
	userID, found, err := g.resolver.ResolveAccount(ctx, login)
	if err != nil {
		return "", false, fmt.Errorf("lockout: resolve account: %w", err)
	}
	return userID, found, nil
}

// OnSuccess clears the account's failure count and lock. Unknown accounts are ignored.
func (g *Guard) OnSuccess(ctx context.Context, account string) error {
	userID, found, err := g.resolve(ctx, account)
	if err != nil || !found {
		return err
	}
	rec, err := g.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("lockout: %w", err)
	}
	if rec.IsClean() {
		return nil
	}
	return g.repo.Update(ctx, userID, func(r *domain.Record) error {
		r.Reset()
		return nil
	})
}

// OnFailure records one failed attempt and reports whether the account is locked afterwards.
// Unknown accounts are ignored and never report locked.
func (g *Guard) OnFailure(ctx context.Context, account string) (bool, error) {
	userID, found, err := g.resolve(ctx, account)
	if err != nil || !found {
		return false, err
	}
	var locked bool
	err = g.repo.Update(ctx, userID, func(r *domain.Record) error {
		locked = r.RegisterFailure(g.clock.Now(), g.policy)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lockout: %w", err)
	}
	return locked, nil
}

// IsLocked reports whether the account is currently locked. It never writes.
func (g *Guard) IsLocked(ctx context.Context, account string) (bool, error) {
	userID, found, err := g.resolve(ctx, account)
	if err != nil || !found {
		return false, err
	}
	rec, err := g.repo.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("lockout: %w", err)
	}
	return rec.IsLocked(g.clock.Now()), nil
}

// AdminUnlock force-clears the lock and counter. It returns false when the account is unknown.
func (g *Guard) AdminUnlock(ctx context.Context, account string) (bool, error) {
	userID, found, err := g.resolve(ctx, account)
	if err != nil || !found {
		return false, err
	}
	err = g.repo.Update(ctx, userID, func(r *domain.Record) error {
		r.Reset()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lockout: %w", err)
	}
	return true, nil
}
