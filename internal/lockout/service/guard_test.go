package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clavionx/backend/internal/lockout/domain"
	"clavionx/backend/internal/lockout/repository"
	"clavionx/backend/internal/platform/clock"
)

type mapResolver map[string]string

func (m mapResolver) ResolveAccount(_ context.Context, login string) (string, bool, error) {
	id, ok := m[login]
	return id, ok, nil
}

type failingResolver struct{}

func (failingResolver) ResolveAccount(context.Context, string) (string, bool, error) {
	return "", false, errors.New("db down")
}

func newGuard() (*Guard, *repository.MemoryRepository, *clock.Fake) {
	repo := repository.NewMemoryRepository()
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	resolver := mapResolver{"alice": "u-alice", "alice@example.com": "u-alice", "bob": "u-bob"}
	return NewGuard(repo, resolver, clk, domain.Policy{}), repo, clk
}

func TestGuard_LocksAfterFiveFailuresAndExpires(t *testing.T) {
	ctx := context.Background()
	g, _, clk := newGuard()

	for i := 1; i <= 4; i++ {
		locked, err := g.OnFailure(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, locked, "failure %d", i)
		clk.Advance(2 * time.Minute)
	}
	locked, err := g.OnFailure(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, locked)

	isLocked, err := g.IsLocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, isLocked)

	clk.Advance(16 * time.Minute)
	isLocked, err = g.IsLocked(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, isLocked, "lock should lapse without further action")
}

func TestGuard_AccountKeyIsNormalized(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGuard()
	for _, login := range []string{"Alice", " ALICE ", "alice@example.com", "Alice@Example.com", "alice"} {
		_, err := g.OnFailure(ctx, login)
		require.NoError(t, err)
	}
	locked, err := g.IsLocked(ctx, "aLiCe")
	require.NoError(t, err)
	assert.True(t, locked, "username and e-mail variants should share one record")
}

func TestGuard_SuccessResets(t *testing.T) {
	ctx := context.Background()
	g, repo, _ := newGuard()
	for i := 0; i < 4; i++ {
		_, err := g.OnFailure(ctx, "bob")
		require.NoError(t, err)
	}
	require.NoError(t, g.OnSuccess(ctx, "bob"))
	rec, err := repo.Get(ctx, "u-bob")
	require.NoError(t, err)
	assert.True(t, rec.IsClean())

	// A fresh run of four failures still does not lock.
	for i := 0; i < 4; i++ {
		locked, err := g.OnFailure(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, locked)
	}
}

func TestGuard_IsLockedDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	g, repo, clk := newGuard()
	for i := 0; i < 5; i++ {
		_, _ = g.OnFailure(ctx, "alice")
	}
	clk.Advance(time.Hour)
	before, _ := repo.Get(ctx, "u-alice")
	_, err := g.IsLocked(ctx, "alice")
	require.NoError(t, err)
	after, _ := repo.Get(ctx, "u-alice")
	assert.Equal(t, before, after)
}

func TestGuard_AdminUnlock(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGuard()
	for i := 0; i < 5; i++ {
		_, _ = g.OnFailure(ctx, "alice")
	}
	ok, err := g.AdminUnlock(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	locked, _ := g.IsLocked(ctx, "alice")
	assert.False(t, locked)

	ok, err = g.AdminUnlock(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuard_UnknownAccountIsNoop(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGuard()
	for i := 0; i < 10; i++ {
		locked, err := g.OnFailure(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, locked)
	}
	require.NoError(t, g.OnSuccess(ctx, "ghost"))
	locked, err := g.IsLocked(ctx, "")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestGuard_ConcurrentFailuresReachThreshold(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGuard()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.OnFailure(ctx, "alice")
		}()
	}
	wg.Wait()
	locked, err := g.IsLocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, locked, "five concurrent failures must lock the account")
}

func TestGuard_ResolverErrorPropagates(t *testing.T) {
	g := NewGuard(repository.NewMemoryRepository(), failingResolver{}, nil, domain.DefaultPolicy())
	_, err := g.OnFailure(context.Background(), "alice")
	assert.Error(t, err)
}
