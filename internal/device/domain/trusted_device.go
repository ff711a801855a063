// Package domain holds trusted-device records and the request attributes used to fingerprint a browser.
package domain

import "time"

// TrustedDevice is a browser the user chose to remember after a successful 2FA verification.
// Unique per (UserID, Fingerprint); re-trusting reactivates and extends the existing record.
type TrustedDevice struct {
	ID          string
	UserID      string
	Fingerprint string
	Label       string
	IPAddress   string
	UserAgent   string
	TrustedAt   time.Time
	ExpiresAt   time.Time
	LastUsed    time.Time
	Active      bool
}

// IsValid reports whether the device currently bypasses 2FA.
func (d *TrustedDevice) IsValid(now time.Time) bool {
	return d != nil && d.Active && now.Before(d.ExpiresAt)
}

// RequestContext carries the client attributes read from an inbound request.
type RequestContext struct {
	IPAddress      string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
}
