package engine

import (
	"context"

	userdomain "clavionx/backend/internal/user/domain"
)

// Permissions checked by the admin API.
const (
	PermUserManageAll = "USER_MANAGE_ALL"
	PermAuditView     = "AUDIT_VIEW"
)

// TwoFactorDecision is the policy outcome for one login.
type TwoFactorDecision struct {
	// Required means a verification code must be presented before a session is created.
	Required bool
	// RememberAllowed means the browser may be remembered after a successful verification.
	RememberAllowed bool
}

// Authorizer answers role/permission checks for callers outside the auth core.
type Authorizer interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

// TwoFactorPolicy decides whether a login needs a second factor.
type TwoFactorPolicy interface {
	EvaluateTwoFactor(ctx context.Context, user *userdomain.User, deviceTrusted bool) (TwoFactorDecision, error)
}
