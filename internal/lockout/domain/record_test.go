package domain

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func TestRecord_LocksAtMaxAttempts(t *testing.T) {
	p := DefaultPolicy()
	r := &Record{UserID: "u"}
	for i := 1; i < p.MaxAttempts; i++ {
		if r.RegisterFailure(t0.Add(time.Duration(i)*time.Minute), p) {
			t.Fatalf("locked after %d failures, want unlocked", i)
		}
	}
	now := t0.Add(5 * time.Minute)
	if !r.RegisterFailure(now, p) {
		t.Fatal("not locked after MaxAttempts failures")
	}
	if r.Attempts != 0 || r.WindowStart != nil {
		t.Errorf("attempts=%d windowStart=%v, want reset on lock", r.Attempts, r.WindowStart)
	}
	if want := now.Add(p.LockDuration); r.LockedUntil == nil || !r.LockedUntil.Equal(want) {
		t.Errorf("LockedUntil = %v, want %v", r.LockedUntil, want)
	}
	if !r.IsLocked(now.Add(14 * time.Minute)) {
		t.Error("should still be locked after 14m")
	}
	if r.IsLocked(now.Add(15 * time.Minute)) {
		t.Error("should be unlocked once LockedUntil is reached")
	}
}

func TestRecord_FailureWhileLockedIsNoop(t *testing.T) {
	until := t0.Add(10 * time.Minute)
	r := &Record{LockedUntil: &until}
	if !r.RegisterFailure(t0, DefaultPolicy()) {
		t.Error("RegisterFailure while locked should report locked")
	}
	if r.Attempts != 0 || !r.LockedUntil.Equal(until) {
		t.Errorf("record mutated while locked: %+v", r)
	}
}

func TestRecord_WindowSlides(t *testing.T) {
	p := DefaultPolicy()
	r := &Record{}
	for i := 0; i < 4; i++ {
		r.RegisterFailure(t0, p)
	}
	// Sixteen minutes later the window has expired: the count restarts at 1.
	if r.RegisterFailure(t0.Add(16*time.Minute), p) {
		t.Fatal("failure after window expiry should not lock")
	}
	if r.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", r.Attempts)
	}
}

func TestRecord_ExpiredLockStartsFreshWindow(t *testing.T) {
	p := DefaultPolicy()
	until := t0
	r := &Record{LockedUntil: &until}
	if r.RegisterFailure(t0.Add(time.Minute), p) {
		t.Error("expired lock should not count as locked")
	}
	if r.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", r.Attempts)
	}
}

func TestRecord_Reset(t *testing.T) {
	until := t0.Add(time.Hour)
	r := &Record{Attempts: 3, WindowStart: &t0, LockedUntil: &until}
	r.Reset()
	if !r.IsClean() {
		t.Errorf("record not clean after Reset: %+v", r)
	}
	var nilRec *Record
	if nilRec.IsLocked(t0) || !nilRec.IsClean() {
		t.Error("nil record should be unlocked and clean")
	}
}
