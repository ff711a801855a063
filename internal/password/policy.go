// Package password holds the password complexity policy. Reuse checks live in password/service.
package password

import (
	"fmt"
	"strings"
	"unicode"
)

// commonPasswords are rejected regardless of the other rules, compared case-insensitively.
var commonPasswords = map[string]struct{}{
	"password":  {},
	"123456":    {},
	"qwerty":    {},
	"111111":    {},
	"12345678":  {},
	"abc123":    {},
	"letmein":   {},
	"123456789": {},
	"12345":     {},
	"password1": {},
	"admin":     {},
	"welcome":   {},
}

// PolicyViolation is returned by Policy.Validate. Message is safe to show to the user.
type PolicyViolation struct {
	Message string
}

func (e *PolicyViolation) Error() string { return e.Message }

// Policy is the set of complexity rules applied to a new raw password.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	RejectCommon   bool
}

// DefaultPolicy returns the default rules: 8..100 characters, all character classes, no common passwords.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      100,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		RejectCommon:   true,
	}
}

// Validate checks raw against the rules in order and returns the first violation, or nil.
// Length is counted in characters, not bytes.
func (p Policy) Validate(raw string) error {
	if raw == "" {
		return &PolicyViolation{Message: "Password is required"}
	}
	n := len([]rune(raw))
	if n < p.MinLength || n > p.MaxLength {
		return &PolicyViolation{Message: fmt.Sprintf("Password must be between %d and %d characters", p.MinLength, p.MaxLength)}
	}
	var upper, lower, digit, special bool
	for _, r := range raw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			special = true
		}
	}
	if p.RequireUpper && !upper {
		return &PolicyViolation{Message: "Password must contain at least one uppercase letter"}
	}
	if p.RequireLower && !lower {
		return &PolicyViolation{Message: "Password must contain at least one lowercase letter"}
	}
	if p.RequireDigit && !digit {
		return &PolicyViolation{Message: "Password must contain at least one digit"}
	}
	if p.RequireSpecial && !special {
		return &PolicyViolation{Message: "Password must contain at least one special character"}
	}
	if p.RejectCommon {
		if _, ok := commonPasswords[strings.ToLower(raw)]; ok {
			return &PolicyViolation{Message: "Password is too common; choose a stronger one"}
		}
	}
	return nil
}
