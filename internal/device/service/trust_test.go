package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clavionx/backend/internal/device/domain"
	"clavionx/backend/internal/device/repository"
	"clavionx/backend/internal/platform/clock"
)

var chrome = domain.RequestContext{
	IPAddress:      "203.0.113.7",
	UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	AcceptLanguage: "en-US,en;q=0.9",
	AcceptEncoding: "gzip, deflate, br",
}

func newTrust() (*TrustService, *repository.MemoryRepository, *clock.Fake) {
	repo := repository.NewMemoryRepository()
	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewTrustService(repo, clk, 0), repo, clk
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("ua", "en", "gzip")
	assert.Equal(t, a, Fingerprint("ua", "en", "gzip"), "deterministic")
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Fingerprint("ua", "de", "gzip"))
	// Field boundaries stay distinct whatever the header values contain.
	assert.NotEqual(t, Fingerprint("a|b", "", "c"), Fingerprint("a", "b|", "c"))
	assert.NotEqual(t, Fingerprint("ab", "", "c"), Fingerprint("a", "b", "c"))
	assert.NotEqual(t, Fingerprint("1:a", "", ""), Fingerprint("", "1:a", ""))
}

func TestTrust_ValidForThirtyDays(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTrust()

	ok, err := svc.IsTrusted(ctx, "u1", chrome)
	require.NoError(t, err)
	assert.False(t, ok, "unknown device")

	d, err := svc.Trust(ctx, "u1", chrome)
	require.NoError(t, err)
	assert.Equal(t, "Chrome on Windows", d.Label)
	assert.Equal(t, clk.Now().Add(30*24*time.Hour), d.ExpiresAt)

	clk.Advance(29 * 24 * time.Hour)
	ok, err = svc.IsTrusted(ctx, "u1", chrome)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(24 * time.Hour)
	ok, err = svc.IsTrusted(ctx, "u1", chrome)
	require.NoError(t, err)
	assert.False(t, ok, "expired after 30 days")
}

func TestIsTrusted_UpdatesLastUsed(t *testing.T) {
	ctx := context.Background()
	svc, repo, clk := newTrust()
	_, err := svc.Trust(ctx, "u1", chrome)
	require.NoError(t, err)
	clk.Advance(time.Hour)
	ok, err := svc.IsTrusted(ctx, "u1", chrome)
	require.NoError(t, err)
	require.True(t, ok)
	d, _ := repo.GetByFingerprint(ctx, "u1", Fingerprint(chrome.UserAgent, chrome.AcceptLanguage, chrome.AcceptEncoding))
	assert.Equal(t, clk.Now(), d.LastUsed)
}

func TestTrust_ReTrustReactivatesAndExtends(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTrust()
	first, err := svc.Trust(ctx, "u1", chrome)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "u1", first.ID))

	clk.Advance(10 * 24 * time.Hour)
	second, err := svc.Trust(ctx, "u1", chrome)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same record, not a duplicate")
	assert.True(t, second.Active)
	assert.Equal(t, clk.Now().Add(30*24*time.Hour), second.ExpiresAt)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTrust_IsPerUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTrust()
	_, err := svc.Trust(ctx, "u1", chrome)
	require.NoError(t, err)
	ok, err := svc.IsTrusted(ctx, "u2", chrome)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTrust()
	firefox := chrome
	firefox.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	d1, _ := svc.Trust(ctx, "u1", chrome)
	_, _ = svc.Trust(ctx, "u1", firefox)

	assert.ErrorIs(t, svc.Revoke(ctx, "u2", d1.ID), ErrDeviceNotFound, "other user's device")
	require.NoError(t, svc.Revoke(ctx, "u1", d1.ID))
	assert.ErrorIs(t, svc.Revoke(ctx, "u1", d1.ID), ErrDeviceNotFound, "already revoked")

	ok, _ := svc.IsTrusted(ctx, "u1", chrome)
	assert.False(t, ok)

	n, err := svc.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, _ := svc.List(ctx, "u1")
	assert.Empty(t, list)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTrust()
	_, _ = svc.Trust(ctx, "u1", chrome)
	n, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clk.Advance(31 * 24 * time.Hour)
	n, err = svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
