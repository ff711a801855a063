package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clavionx/backend/internal/user/domain"
)

const userColumns = `id, username, email, COALESCE(phone, ''), password_hash, role, status,
	two_factor_enabled, two_factor_method, created_at, updated_at`

// PostgresRepository reads and writes the users table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByLogin returns the user with the given username or e-mail, or nil if not found.
func (r *PostgresRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	return scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(username) = $1 OR lower(email) = $1
		LIMIT 1
	`, login))
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	phone := sql.NullString{String: u.Phone, Valid: u.Phone != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, phone, password_hash, role, status,
			two_factor_enabled, two_factor_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Username, u.Email, phone, u.PasswordHash, string(u.Role), string(u.Status),
		u.TwoFactorEnabled, string(u.TwoFactorMethod), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the user's password hash.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTwoFactor updates the user's two-factor flag and method.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, userID string, enabled bool, method domain.TwoFactorMethod) error {
	if !method.Valid() {
		return fmt.Errorf("two-factor method %q", method)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET two_factor_enabled = $2, two_factor_method = $3, updated_at = $4 WHERE id = $1
	`, userID, enabled, string(method), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update two-factor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u                    domain.User
		role, status, method string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.PasswordHash, &role, &status,
		&u.TwoFactorEnabled, &method, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	u.TwoFactorMethod = domain.TwoFactorMethod(method)
	return &u, nil
}
