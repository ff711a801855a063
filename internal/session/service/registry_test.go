package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/session/repository"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newRegistry(max int) (*Registry, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC))
	return NewRegistry(repository.NewMemoryRepository(), clk, max), clk
}

func TestCreate_SixthLoginEvictsOldest(t *testing.T) {
	ctx := context.Background()
	r, clk := newRegistry(5)

	var ids []string
	for i := 0; i < 5; i++ {
		s, err := r.Create(ctx, "u-1", "10.0.0.1", chromeUA)
		require.NoError(t, err)
		ids = append(ids, s.ID)
		clk.Advance(time.Minute)
	}
	s6, err := r.Create(ctx, "u-1", "10.0.0.1", chromeUA)
	require.NoError(t, err)

	first, err := r.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, first.Active)
	require.NotNil(t, first.LogoutTime)
	assert.True(t, first.LogoutTime.Equal(clk.Now()))

	active, err := r.ListActive(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, active, 5)
	got := map[string]bool{}
	for _, s := range active {
		got[s.ID] = true
	}
	for _, id := range append(ids[1:], s6.ID) {
		assert.True(t, got[id], "session %s should stay active", id)
	}
	assert.Equal(t, s6.ID, active[0].ID, "newest first")
}

func TestCreate_TieBreakOnLowestID(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(2)
	n := 0
	r.newID = func() (string, error) { n++; return fmt.Sprintf("id-%d", 10-n), nil }

	// Same clock instant: id-9, id-8. Eviction must pick id-8.
	_, err := r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)
	_, err = r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)
	_, err = r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)

	ok, err := r.IsActive(ctx, "id-8")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.IsActive(ctx, "id-9")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate_ConcurrentLoginsKeepLimit(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(5)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create(ctx, "u-1", "", chromeUA)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	active, err := r.ListActive(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, active, 5)
	all, err := r.ListAll(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestCreate_SetsDeviceLabelAndFreshID(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(5)
	a, err := r.Create(ctx, "u-1", "1.2.3.4", chromeUA)
	require.NoError(t, err)
	b, err := r.Create(ctx, "u-1", "1.2.3.4", chromeUA)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "Chrome on Windows", a.DeviceLabel)
	assert.Equal(t, "1.2.3.4", a.IPAddress)
}

func TestTouchAndTerminate(t *testing.T) {
	ctx := context.Background()
	r, clk := newRegistry(5)
	s, err := r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	require.NoError(t, r.Touch(ctx, s.ID))
	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(clk.Now()))

	require.NoError(t, r.Terminate(ctx, s.ID))
	require.NoError(t, r.Terminate(ctx, s.ID), "terminate is idempotent")
	require.NoError(t, r.Terminate(ctx, "missing"), "missing session is benign")
	require.NoError(t, r.Touch(ctx, "missing"))

	clk.Advance(time.Minute)
	require.NoError(t, r.Touch(ctx, s.ID))
	got, err = r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, got.LastActivity.Equal(clk.Now().Add(-time.Minute)), "touch ignores inactive sessions")

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	ok, err := r.IsActive(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTerminateAllExceptAndAll(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(5)
	keep, err := r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx, "u-1", "", "")
		require.NoError(t, err)
	}
	other, err := r.Create(ctx, "u-2", "", "")
	require.NoError(t, err)

	n, err := r.TerminateAllExcept(ctx, "u-1", keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	active, err := r.ListActive(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.ID, active[0].ID)

	n, err = r.TerminateAll(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := r.IsActive(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, ok, "other users are untouched")
}

func TestCleanupInactiveAndPurge(t *testing.T) {
	ctx := context.Background()
	r, clk := newRegistry(5)
	idle, err := r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)
	busy, err := r.Create(ctx, "u-1", "", "")
	require.NoError(t, err)

	clk.Advance(23 * time.Hour)
	require.NoError(t, r.Touch(ctx, busy.ID))
	clk.Advance(2 * time.Hour)

	n, err := r.CleanupInactive(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ok, err := r.IsActive(ctx, idle.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.IsActive(ctx, busy.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = r.PurgeOld(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "recently ended sessions are kept")

	clk.Advance(31 * 24 * time.Hour)
	n, err = r.PurgeOld(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = r.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(ctx, busy.ID)
	assert.NoError(t, err, "active sessions are never purged")
}
