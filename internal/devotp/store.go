// Package devotp keeps the last verification code per destination in memory so codes can be read back
// during local development (GET /dev/otp). It is never wired when APP_ENV is production.
package devotp

import (
	"context"
	"sync"
	"time"

	"clavionx/backend/internal/platform/clock"
)

// Store holds plain OTPs by destination (e-mail address or phone number) for dev-only retrieval.
type Store interface {
	// Put stores otp for destination until expiresAt, replacing any earlier code.
	Put(ctx context.Context, destination, otp string, expiresAt time.Time)
	// Get returns the otp for destination if present and not expired. Returns ok false if missing or expired.
	Get(ctx context.Context, destination string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu    sync.Mutex
	m     map[string]entry
	clock clock.Clock
}

// NewMemoryStore returns a new in-memory dev OTP store using clk (system clock when nil).
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		m:     make(map[string]entry),
		clock: clock.OrSystem(clk),
	}
}

// Put stores otp for destination until expiresAt.
func (s *MemoryStore) Put(_ context.Context, destination, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[destination] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for destination if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(_ context.Context, destination string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[destination]
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.clock.Now()) {
		delete(s.m, destination)
		return "", false
	}
	return e.otp, true
}
