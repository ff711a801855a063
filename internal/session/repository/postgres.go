package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clavionx/backend/internal/db"
	"clavionx/backend/internal/session/domain"
)

const sessionColumns = `session_id, user_id, ip_address, user_agent, device_label, login_time, last_activity, active, logout_time`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		s      domain.Session
		logout sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.DeviceLabel, &s.LoginTime, &s.LastActivity, &s.Active, &logout); err != nil {
		return nil, err
	}
	s.LogoutTime = db.TimePtr(logout)
	return &s, nil
}

// CreateEvictingOldest runs in one transaction holding a per-user advisory lock, so concurrent logins
// for the same user see each other's inserts and evictions.
func (r *PostgresRepository) CreateEvictingOldest(ctx context.Context, s *domain.Session, max int, now time.Time) ([]string, error) {
	var evicted []string
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		evicted = nil
		if err := db.LockKey(ctx, tx, db.LockSessions, s.UserID); err != nil {
			return err
		}
		var active int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE user_id = $1 AND active`, s.UserID).Scan(&active); err != nil {
			return fmt.Errorf("count active sessions: %w", err)
		}
		if excess := active - max + 1; max > 0 && excess > 0 {
			rows, err := tx.QueryContext(ctx, `
				UPDATE sessions SET active = FALSE, logout_time = $3
				WHERE session_id IN (
					SELECT session_id FROM sessions
					WHERE user_id = $1 AND active
					ORDER BY login_time ASC, session_id ASC
					LIMIT $2
				)
				RETURNING session_id
			`, s.UserID, excess, now)
			if err != nil {
				return fmt.Errorf("evict sessions: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					return err
				}
				evicted = append(evicted, id)
			}
			if err := rows.Err(); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, s.ID, s.UserID, s.IPAddress, s.UserAgent, s.DeviceLabel, s.LoginTime, s.LastActivity, s.Active, db.NullTime(s.LogoutTime))
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Touch sets last_activity for an active session.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_activity = $2 WHERE session_id = $1 AND active`, id, at)
	return err
}

// Deactivate terminates one active session.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = FALSE, logout_time = $2 WHERE session_id = $1 AND active`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeactivateAllExcept terminates the user's active sessions other than keepID.
func (r *PostgresRepository) DeactivateAllExcept(ctx context.Context, userID, keepID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET active = FALSE, logout_time = $3
		WHERE user_id = $1 AND active AND session_id <> $2
	`, userID, keepID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListByUser returns the user's sessions, newest login first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND (active OR NOT $2)
		ORDER BY login_time DESC, session_id DESC
	`, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeactivateIdle terminates active sessions idle since before cutoff.
func (r *PostgresRepository) DeactivateIdle(ctx context.Context, cutoff, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET active = FALSE, logout_time = $2
		WHERE active AND last_activity < $1
	`, cutoff, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteEnded removes inactive sessions that ended before cutoff.
func (r *PostgresRepository) DeleteEnded(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE NOT active AND logout_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
