package domain

import "time"

// AuditLog represents an audit event. UserID is empty for events without a known account
// (for example a failed login for an unknown username).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// Actions recorded by the auth core.
const (
	ActionLoginSuccess           = "login_success"
	ActionLoginFailure           = "login_failure"
	ActionAccountLocked          = "account_locked"
	ActionAccountUnlocked        = "account_unlocked"
	ActionTwoFactorIssued        = "two_factor_issued"
	ActionTwoFactorFailed        = "two_factor_failed"
	ActionTwoFactorVerified      = "two_factor_verified"
	ActionTwoFactorEnabled       = "two_factor_enabled"
	ActionTwoFactorDisabled      = "two_factor_disabled"
	ActionLogout                 = "logout"
	ActionPasswordChanged        = "password_changed"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordReset          = "password_reset"
	ActionSessionsTerminated     = "sessions_terminated"
	ActionDeviceTrusted          = "device_trusted"
	ActionDeviceRevoked          = "device_revoked"
)
