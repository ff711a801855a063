package domain

import (
	"testing"
	"time"
)

func TestSession_Deactivate(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Session{ID: "a", Active: true}
	s.Deactivate(now)
	if s.Active || s.LogoutTime == nil || !s.LogoutTime.Equal(now) {
		t.Fatalf("after Deactivate: active=%v logout=%v", s.Active, s.LogoutTime)
	}
	s.Deactivate(now.Add(time.Hour))
	if !s.LogoutTime.Equal(now) {
		t.Error("second Deactivate should keep the original logout time")
	}
}

func TestSession_Older(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Session{ID: "b", LoginTime: t0}
	b := &Session{ID: "a", LoginTime: t0.Add(time.Second)}
	if !a.Older(b) || b.Older(a) {
		t.Error("earlier login time should be older")
	}
	c := &Session{ID: "a", LoginTime: t0}
	if !c.Older(a) || a.Older(c) {
		t.Error("equal login times should fall back to the lower ID")
	}
}
