// Package domain holds the two-factor verification token and its validity rule.
package domain

import "time"

// Method selects the delivery channel(s) for a verification code.
type Method string

const (
	MethodEmail Method = "EMAIL"
	MethodPhone Method = "PHONE"
	MethodBoth  Method = "BOTH"
)

// DefaultMaxAttempts is the number of wrong codes a token tolerates.
const DefaultMaxAttempts = 3

// Token is one issued verification code. CodeHash is the SHA-256 hex digest of the code.
// Terminal states (consumed, expired, exhausted, superseded) are never left.
type Token struct {
	ID          string
	UserID      string
	CodeHash    string
	Method      Method
	ExpiresAt   time.Time
	Used        bool
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	UsedAt      *time.Time
}

// IsValid reports whether the token can still be consumed at now.
func (t *Token) IsValid(now time.Time) bool {
	return t != nil && !t.Used && now.Before(t.ExpiresAt) && t.Attempts < t.MaxAttempts
}

// IsExhausted reports whether the token has used up its attempts.
func (t *Token) IsExhausted() bool {
	return t != nil && t.Attempts >= t.MaxAttempts
}

// IsExpired reports whether the token's lifetime has passed at now.
func (t *Token) IsExpired(now time.Time) bool {
	return t != nil && !now.Before(t.ExpiresAt)
}
