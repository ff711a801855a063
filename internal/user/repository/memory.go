package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clavionx/backend/internal/user/domain"
)

var (
	// ErrNotFound is returned by updates that match no user.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when a username or e-mail is already taken.
	ErrDuplicate = errors.New("username or email already exists")
)

// MemoryRepository keeps users in process memory. Used for development and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]domain.User)}
}

// GetByID returns a copy of the user, or nil if not found.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetByLogin returns a copy of the user whose username or e-mail matches login, or nil.
func (r *MemoryRepository) GetByLogin(_ context.Context, login string) (*domain.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.ToLower(u.Username) == login || strings.ToLower(u.Email) == login {
			return &u, nil
		}
	}
	return nil, nil
}

// Create stores a copy of u.
func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ID == u.ID ||
			strings.EqualFold(existing.Username, u.Username) ||
			strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	r.users[u.ID] = *u
	return nil
}

// UpdatePasswordHash replaces the user's password hash.
func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.users[userID] = u
	return nil
}

// SetTwoFactor updates the user's two-factor flag and method.
func (r *MemoryRepository) SetTwoFactor(_ context.Context, userID string, enabled bool, method domain.TwoFactorMethod) error {
	if !method.Valid() {
		return fmt.Errorf("two-factor method %q", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.TwoFactorEnabled = enabled
	u.TwoFactorMethod = method
	u.UpdatedAt = time.Now().UTC()
	r.users[userID] = u
	return nil
}
