package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"clavionx/backend/internal/device/domain"
)

// MemoryRepository keeps trusted devices in process memory. Used for development and tests.
type MemoryRepository struct {
	mu      sync.Mutex
	devices map[string]domain.TrustedDevice
}

// NewMemoryRepository returns an empty in-memory trusted-device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]domain.TrustedDevice)}
}

func (r *MemoryRepository) findLocked(userID, fingerprint string) (domain.TrustedDevice, bool) {
	for _, d := range r.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint {
			return d, true
		}
	}
	return domain.TrustedDevice{}, false
}

// GetByFingerprint returns a copy of the device, or nil if not found.
func (r *MemoryRepository) GetByFingerprint(_ context.Context, userID, fingerprint string) (*domain.TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.findLocked(userID, fingerprint)
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// TouchLastUsed sets LastUsed on the device.
func (r *MemoryRepository) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.LastUsed = at
		r.devices[id] = d
	}
	return nil
}

// Upsert inserts or reactivates the device on (UserID, Fingerprint).
func (r *MemoryRepository) Upsert(_ context.Context, d *domain.TrustedDevice) (*domain.TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *d
	if existing, ok := r.findLocked(d.UserID, d.Fingerprint); ok {
		stored.ID = existing.ID
	}
	stored.Active = true
	r.devices[stored.ID] = stored
	return &stored, nil
}

// ListActive returns active, unexpired devices for the user, most recently used first.
func (r *MemoryRepository) ListActive(_ context.Context, userID string, now time.Time) ([]*domain.TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TrustedDevice
	for _, d := range r.devices {
		if d.UserID == userID && d.IsValid(now) {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out, nil
}

// Deactivate revokes one device of the user.
func (r *MemoryRepository) Deactivate(_ context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok || d.UserID != userID || !d.Active {
		return false, nil
	}
	d.Active = false
	r.devices[id] = d
	return true, nil
}

// DeactivateAll revokes all active devices of the user.
func (r *MemoryRepository) DeactivateAll(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, d := range r.devices {
		if d.UserID == userID && d.Active {
			d.Active = false
			r.devices[id] = d
			n++
		}
	}
	return n, nil
}

// DeleteExpired deletes devices that expired before now.
func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, d := range r.devices {
		if d.ExpiresAt.Before(now) {
			delete(r.devices, id)
			n++
		}
	}
	return n, nil
}
