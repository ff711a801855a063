// Package service remembers browsers that passed 2FA so later logins from them can skip the challenge.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clavionx/backend/internal/device"
	"clavionx/backend/internal/device/domain"
	"clavionx/backend/internal/device/repository"
	"clavionx/backend/internal/platform/clock"
)

// DefaultTrustTTL is how long a remembered device bypasses 2FA.
const DefaultTrustTTL = 30 * 24 * time.Hour

// ErrDeviceNotFound is returned by Revoke when the user has no such active device.
var ErrDeviceNotFound = errors.New("trusted device not found")

// Fingerprint is the SHA-256 hex digest of the length-prefixed user agent, accept-language and
// accept-encoding headers. It identifies a browser configuration heuristically and is not bound to the hardware.
func Fingerprint(userAgent, acceptLanguage, acceptEncoding string) string {
	h := sha256.New()
	for _, field := range []string{userAgent, acceptLanguage, acceptEncoding} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TrustService manages the trusted-device cache.
type TrustService struct {
	repo  repository.Repository
	clock clock.Clock
	ttl   time.Duration
}

// NewTrustService returns a TrustService. ttl <= 0 uses DefaultTrustTTL.
func NewTrustService(repo repository.Repository, clk clock.Clock, ttl time.Duration) *TrustService {
	if ttl <= 0 {
		ttl = DefaultTrustTTL
	}
	return &TrustService{repo: repo, clock: clock.OrSystem(clk), ttl: ttl}
}

// IsTrusted reports whether the requesting browser is an active, unexpired trusted device of the user.
// On a hit it records the use.
func (s *TrustService) IsTrusted(ctx context.Context, userID string, rc domain.RequestContext) (bool, error) {
	fp := Fingerprint(rc.UserAgent, rc.AcceptLanguage, rc.AcceptEncoding)
	d, err := s.repo.GetByFingerprint(ctx, userID, fp)
	if err != nil {
		return false, fmt.Errorf("trusted device lookup: %w", err)
	}
	now := s.clock.Now()
	if !d.IsValid(now) {
		return false, nil
	}
	if err := s.repo.TouchLastUsed(ctx, d.ID, now); err != nil {
		return false, fmt.Errorf("trusted device touch: %w", err)
	}
	return true, nil
}

// Trust remembers the requesting browser for the configured TTL, reactivating an existing record.
func (s *TrustService) Trust(ctx context.Context, userID string, rc domain.RequestContext) (*domain.TrustedDevice, error) {
	now := s.clock.Now()
	d := &domain.TrustedDevice{
		ID:          uuid.New().String(),
		UserID:      userID,
		Fingerprint: Fingerprint(rc.UserAgent, rc.AcceptLanguage, rc.AcceptEncoding),
		Label:       device.Label(rc.UserAgent),
		IPAddress:   rc.IPAddress,
		UserAgent:   rc.UserAgent,
		TrustedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		LastUsed:    now,
		Active:      true,
	}
	out, err := s.repo.Upsert(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("trust device: %w", err)
	}
	return out, nil
}

// List returns the user's active trusted devices.
func (s *TrustService) List(ctx context.Context, userID string) ([]*domain.TrustedDevice, error) {
	return s.repo.ListActive(ctx, userID, s.clock.Now())
}

// Revoke stops trusting one device. Returns ErrDeviceNotFound if it is not an active device of the user.
func (s *TrustService) Revoke(ctx context.Context, userID, deviceID string) error {
	ok, err := s.repo.Deactivate(ctx, userID, deviceID)
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	if !ok {
		return ErrDeviceNotFound
	}
	return nil
}

// RevokeAll stops trusting every device of the user and returns how many were revoked.
func (s *TrustService) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke devices: %w", err)
	}
	return n, nil
}

// CleanupExpired deletes device records whose trust has expired.
func (s *TrustService) CleanupExpired(ctx context.Context) (int, error) {
	return s.repo.DeleteExpired(ctx, s.clock.Now())
}
