package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clavionx/backend/internal/device/domain"
)

const deviceColumns = `id, user_id, device_identifier, device_name, ip_address, user_agent,
	trusted_at, expires_at, last_used, active`

// PostgresRepository stores trusted devices in the trusted_devices table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a trusted-device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.TrustedDevice, error) {
	var d domain.TrustedDevice
	err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.Label, &d.IPAddress, &d.UserAgent,
		&d.TrustedAt, &d.ExpiresAt, &d.LastUsed, &d.Active)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByFingerprint returns the device for the given user and fingerprint, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.TrustedDevice, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM trusted_devices
		WHERE user_id = $1 AND device_identifier = $2
	`, userID, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// TouchLastUsed sets last_used for the device.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE trusted_devices SET last_used = $2 WHERE id = $1`, id, at)
	return err
}

// Upsert inserts or reactivates the device on (user_id, device_identifier).
func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.TrustedDevice) (*domain.TrustedDevice, error) {
	out, err := scanDevice(r.db.QueryRowContext(ctx, `
		INSERT INTO trusted_devices (id, user_id, device_identifier, device_name, ip_address, user_agent,
			trusted_at, expires_at, last_used, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (user_id, device_identifier) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			ip_address  = EXCLUDED.ip_address,
			user_agent  = EXCLUDED.user_agent,
			trusted_at  = EXCLUDED.trusted_at,
			expires_at  = EXCLUDED.expires_at,
			last_used   = EXCLUDED.last_used,
			active      = TRUE
		RETURNING `+deviceColumns,
		d.ID, d.UserID, d.Fingerprint, d.Label, d.IPAddress, d.UserAgent, d.TrustedAt, d.ExpiresAt, d.LastUsed))
	if err != nil {
		return nil, fmt.Errorf("upsert trusted device: %w", err)
	}
	return out, nil
}

// ListActive returns active, unexpired devices for the user.
func (r *PostgresRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.TrustedDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM trusted_devices
		WHERE user_id = $1 AND active AND expires_at > $2
		ORDER BY last_used DESC, id
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.TrustedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Deactivate revokes one device of the user.
func (r *PostgresRepository) Deactivate(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE trusted_devices SET active = FALSE WHERE id = $1 AND user_id = $2 AND active
	`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeactivateAll revokes all active devices of the user.
func (r *PostgresRepository) DeactivateAll(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE trusted_devices SET active = FALSE WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteExpired deletes devices that expired before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trusted_devices WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
