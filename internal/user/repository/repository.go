package repository

import (
	"context"

	"clavionx/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByLogin returns the user whose username or e-mail equals login, case-insensitively.
	GetByLogin(ctx context.Context, login string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	// SetTwoFactor stores the user's two-factor preference. Returns ErrNotFound for an unknown user.
	SetTwoFactor(ctx context.Context, userID string, enabled bool, method domain.TwoFactorMethod) error
}
