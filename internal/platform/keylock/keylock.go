// Package keylock serializes work per key (for example per user or per account) while letting
// different keys proceed in parallel. It backs the in-memory repositories.
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Striped is a fixed set of mutexes selected by key hash. Two keys may share a stripe;
// that only costs parallelism, never correctness.
type Striped struct {
	stripes []sync.Mutex
}

// New returns a Striped lock with n stripes (64 when n <= 0).
func New(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

func (s *Striped) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

// Lock acquires the lock for key and returns its unlock func.
func (s *Striped) Lock(key string) (unlock func()) {
	m := s.stripe(key)
	m.Lock()
	return m.Unlock
}

// Do runs fn while holding the lock for key.
func (s *Striped) Do(key string, fn func() error) error {
	unlock := s.Lock(key)
	defer unlock()
	return fn()
}
