package domain

import (
	"errors"
	"time"
)

// User is the account that signs in. Profile management lives outside this service; only
// lookup, creation (seeding) and password updates are supported here.
type User struct {
	ID               string
	Username         string
	Email            string
	Phone            string // optional; destination for SMS codes
	PasswordHash     string
	Role             Role
	Status           UserStatus
	TwoFactorEnabled bool
	TwoFactorMethod  TwoFactorMethod
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// TwoFactorMethod selects where verification codes are delivered.
type TwoFactorMethod string

const (
	TwoFactorEmail TwoFactorMethod = "EMAIL"
	TwoFactorPhone TwoFactorMethod = "PHONE"
	TwoFactorBoth  TwoFactorMethod = "BOTH"
)

// Valid reports whether m is a known method.
func (m TwoFactorMethod) Valid() bool {
	switch m {
	case TwoFactorEmail, TwoFactorPhone, TwoFactorBoth:
		return true
	}
	return false
}

// Role is the user's application role; permissions per role are decided by the policy engine.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleTeacher    Role = "TEACHER"
	RoleAnalyst    Role = "ANALYST"
	RoleModerator  Role = "MODERATOR"
	RoleStudent    Role = "STUDENT"
	RoleGuest      Role = "GUEST"
)

// IsActive reports whether the user may sign in.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Role == "" {
		u.Role = RoleStudent
	}
	if u.TwoFactorMethod == "" {
		u.TwoFactorMethod = TwoFactorEmail
	}
	if !u.TwoFactorMethod.Valid() {
		return errors.New("two-factor method must be EMAIL, PHONE or BOTH")
	}
	return nil
}
