// Package domain holds the per-account failed-login record and its sliding-window rules.
package domain

import "time"

// Policy configures the sliding-window lockout.
type Policy struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

// DefaultPolicy locks an account for 15 minutes after 5 failures inside 15 minutes.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Window: 15 * time.Minute, LockDuration: 15 * time.Minute}
}

// Record is the failed-login state of one account. It is created lazily on first failure.
type Record struct {
	UserID      string
	Attempts    int
	WindowStart *time.Time
	LockedUntil *time.Time
}

// IsLocked reports whether LockedUntil is set and after now.
func (r *Record) IsLocked(now time.Time) bool {
	return r != nil && r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// RegisterFailure applies one failed attempt at now and reports whether the account is locked afterwards.
// A failure while locked changes nothing. A failure outside the window restarts the window.
// Reaching MaxAttempts sets LockedUntil and clears the counter.
func (r *Record) RegisterFailure(now time.Time, p Policy) bool {
	if r.IsLocked(now) {
		return true
	}
	if r.WindowStart == nil || now.Sub(*r.WindowStart) > p.Window {
		start := now
		r.Attempts = 0
		r.WindowStart = &start
	}
	r.Attempts++
	if r.Attempts >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		r.LockedUntil = &until
		r.Attempts = 0
		r.WindowStart = nil
		return true
	}
	return false
}

// Reset clears the counter, window and lock.
func (r *Record) Reset() {
	r.Attempts = 0
	r.WindowStart = nil
	r.LockedUntil = nil
}

// IsClean reports whether the record holds no failures and no lock.
func (r *Record) IsClean() bool {
	return r == nil || (r.Attempts == 0 && r.LockedUntil == nil && r.WindowStart == nil)
}
