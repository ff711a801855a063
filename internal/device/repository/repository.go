package repository

import (
	"context"
	"time"

	"clavionx/backend/internal/device/domain"
)

// Repository defines persistence for trusted devices.
type Repository interface {
	// GetByFingerprint returns the record for (userID, fingerprint), or nil if none exists.
	GetByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.TrustedDevice, error)
	// TouchLastUsed sets last_used on the device.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	// Upsert inserts d, or when (UserID, Fingerprint) exists reactivates that record and overwrites its
	// trust window, label and client attributes. Returns the stored record.
	Upsert(ctx context.Context, d *domain.TrustedDevice) (*domain.TrustedDevice, error)
	// ListActive returns the user's active, unexpired devices, most recently used first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.TrustedDevice, error)
	// Deactivate revokes one device of the user. Returns false when no active device matched.
	Deactivate(ctx context.Context, userID, id string) (bool, error)
	// DeactivateAll revokes every active device of the user and returns how many were revoked.
	DeactivateAll(ctx context.Context, userID string) (int, error)
	// DeleteExpired hard-deletes devices whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
