package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

const sessionIDBytes = 32

// NewSessionID returns a 256-bit random session identifier, base64url-encoded without padding.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
