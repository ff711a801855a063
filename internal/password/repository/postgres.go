package repository

import (
	"context"
	"database/sql"
	"fmt"

	"clavionx/backend/internal/db"
	"clavionx/backend/internal/password/domain"
)

// PostgresRepository stores password history in the password_history table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a password history repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// ListRecent returns the newest limit entries for userID, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, password_hash, changed_at
		FROM password_history
		WHERE user_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()
	var out []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PasswordHash, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// AppendAndPrune inserts e and prunes the user's history to the newest keep entries in one transaction.
func (r *PostgresRepository) AppendAndPrune(ctx context.Context, e *domain.HistoryEntry, keep int) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := db.LockKey(ctx, tx, db.LockPasswordHistory, e.UserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO password_history (id, user_id, password_hash, changed_at)
			VALUES ($1, $2, $3, $4)
		`, e.ID, e.UserID, e.PasswordHash, e.ChangedAt); err != nil {
			return fmt.Errorf("insert password history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM password_history
			WHERE user_id = $1
			  AND id NOT IN (
				SELECT id FROM password_history
				WHERE user_id = $1
				ORDER BY changed_at DESC, id DESC
				LIMIT $2
			  )
		`, e.UserID, keep); err != nil {
			return fmt.Errorf("prune password history: %w", err)
		}
		return nil
	})
}
