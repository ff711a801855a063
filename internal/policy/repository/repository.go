package repository

import (
	"context"

	"clavionx/backend/internal/policy/domain"
)

// Repository supplies operator policy modules.
type Repository interface {
	// ListEnabled returns the enabled modules in a stable order.
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
}
