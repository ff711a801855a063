package domain

import "time"

// Session is a server-side login bound to one client. A new ID is minted for every login and never reused.
type Session struct {
	ID           string
	UserID       string
	IPAddress    string
	UserAgent    string
	DeviceLabel  string
	LoginTime    time.Time
	LastActivity time.Time
	Active       bool
	LogoutTime   *time.Time // set when the session is terminated
}

// Deactivate marks the session terminated at now. It is a no-op for an inactive session.
func (s *Session) Deactivate(now time.Time) {
	if !s.Active {
		return
	}
	s.Active = false
	t := now
	s.LogoutTime = &t
}

// Older reports whether s precedes o in eviction order: earlier LoginTime, then lower ID.
func (s *Session) Older(o *Session) bool {
	if !s.LoginTime.Equal(o.LoginTime) {
		return s.LoginTime.Before(o.LoginTime)
	}
	return s.ID < o.ID
}
