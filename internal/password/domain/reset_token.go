package domain

import "time"

// ResetToken is an outstanding password reset link. Only the SHA-256 digest of the link secret is stored.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsValid reports whether the token is unused and unexpired at now.
func (t *ResetToken) IsValid(now time.Time) bool {
	return t != nil && t.UsedAt == nil && now.Before(t.ExpiresAt)
}
