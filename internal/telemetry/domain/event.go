// Package domain holds the security event shape shared by the emitters, the Kafka producer and the worker.
package domain

import "time"

// Event types.
const (
	EventLoginSucceeded         = "auth.login.succeeded"
	EventLoginFailed            = "auth.login.failed"
	EventAccountLocked          = "auth.account.locked"
	EventTwoFactorIssued        = "auth.two_factor.issued"
	EventTwoFactorVerified      = "auth.two_factor.verified"
	EventTwoFactorFailed        = "auth.two_factor.failed"
	EventTwoFactorEnabled       = "auth.two_factor.enabled"
	EventTwoFactorDisabled      = "auth.two_factor.disabled"
	EventLogout                 = "auth.logout"
	EventPasswordChanged        = "auth.password.changed"
	EventPasswordResetRequested = "auth.password.reset_requested"
	EventPasswordReset          = "auth.password.reset"
	EventSessionEvicted         = "session.evicted"
	EventDeviceTrusted          = "device.trusted"
	EventAdminRequest           = "admin.request"
	EventScheduledJobRan        = "scheduler.job.ran"
)

// Event is one security-relevant occurrence. It never carries passwords, codes or session tokens;
// SessionID is a truncated reference only.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// SessionRef shortens a session ID to a non-replayable reference for logs and events.
func SessionRef(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}
