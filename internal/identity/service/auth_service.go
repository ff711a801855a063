// Package service composes the lockout guard, two-factor challenge, trusted devices, session registry
// and password policy into the login, verification, logout, password change, password reset and
// two-factor enrolment flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"clavionx/backend/internal/audit"
	auditdomain "clavionx/backend/internal/audit/domain"
	devicedomain "clavionx/backend/internal/device/domain"
	deviceservice "clavionx/backend/internal/device/service"
	lockoutservice "clavionx/backend/internal/lockout/service"
	"clavionx/backend/internal/metrics"
	mfadomain "clavionx/backend/internal/mfa/domain"
	"clavionx/backend/internal/mfa/notify"
	mfaservice "clavionx/backend/internal/mfa/service"
	"clavionx/backend/internal/password"
	passwordservice "clavionx/backend/internal/password/service"
	"clavionx/backend/internal/policy/engine"
	sessiondomain "clavionx/backend/internal/session/domain"
	sessionservice "clavionx/backend/internal/session/service"
	"clavionx/backend/internal/telemetry"
	telemetrydomain "clavionx/backend/internal/telemetry/domain"
	userdomain "clavionx/backend/internal/user/domain"
)

// Sentinel errors for the auth flows; handlers map them to generic user-facing messages.
var (
	ErrInvalidCredentials         = errors.New("invalid credentials")
	ErrAccountLocked              = errors.New("account locked")
	ErrTwoFactorRequired          = errors.New("two-factor verification required")
	ErrTwoFactorCodeInvalid       = errors.New("two-factor code invalid")
	ErrTwoFactorCodeExpired       = errors.New("two-factor code expired")
	ErrTwoFactorAttemptsExhausted = errors.New("two-factor attempts exhausted")
	ErrDeviceNotTrusted           = errors.New("device not trusted")
	// ErrSessionLimitReached is internal: the registry resolves it by evicting the oldest session.
	ErrSessionLimitReached        = errors.New("session limit reached")
	ErrPasswordPolicyViolation    = errors.New("password policy violation")
	ErrPasswordReused             = errors.New("password reused")
	ErrNotificationDeliveryFailed = errors.New("verification code could not be delivered")
	ErrInfrastructureTimeout      = errors.New("infrastructure unavailable")
	ErrTwoFactorMethodUnavailable = errors.New("two-factor method unavailable for this account")
	ErrTwoFactorNotEnabled        = errors.New("two-factor authentication is not enabled")
	ErrResetTokenInvalid          = errors.New("password reset link is invalid or expired")
)

const (
	// DefaultStoreTimeout bounds one store call.
	DefaultStoreTimeout = 5 * time.Second
	defaultRetryDelay   = 100 * time.Millisecond
)

// Client is the request context of the browser performing the flow.
type Client = devicedomain.RequestContext

// UserStore is the minimal user repository needed by the auth service.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByLogin(ctx context.Context, login string) (*userdomain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	SetTwoFactor(ctx context.Context, userID string, enabled bool, method userdomain.TwoFactorMethod) error
}

// PasswordHasher hashes and compares passwords.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Compare(hash string, password []byte) error
	// CompareDummy spends the time of one Compare, for unknown accounts.
	CompareDummy(password []byte)
}

// LoginGuard is the login attempt guard.
type LoginGuard interface {
	IsLocked(ctx context.Context, account string) (bool, error)
	OnFailure(ctx context.Context, account string) (bool, error)
	OnSuccess(ctx context.Context, account string) error
}

// Challenger issues and verifies two-factor codes.
type Challenger interface {
	Issue(ctx context.Context, to mfaservice.Recipient, method mfadomain.Method) (bool, error)
	Verify(ctx context.Context, userID, code string) error
	RecordFailedAttempt(ctx context.Context, userID, code string) error
	InvalidateAll(ctx context.Context, userID string) (int, error)
}

// DeviceTrust is the trusted device store.
type DeviceTrust interface {
	IsTrusted(ctx context.Context, userID string, rc devicedomain.RequestContext) (bool, error)
	Trust(ctx context.Context, userID string, rc devicedomain.RequestContext) (*devicedomain.TrustedDevice, error)
	Revoke(ctx context.Context, userID, deviceID string) error
}

// Sessions is the session registry.
type Sessions interface {
	Create(ctx context.Context, userID, ipAddress, userAgent string) (*sessiondomain.Session, error)
	Get(ctx context.Context, id string) (*sessiondomain.Session, error)
	Terminate(ctx context.Context, id string) error
	TerminateAllExcept(ctx context.Context, userID, keepID string) (int, error)
	TerminateAll(ctx context.Context, userID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	MaxSessions() int
}

// PasswordHistory rejects reuse of current and recent passwords.
type PasswordHistory interface {
	ValidateNotCurrent(currentDigest, raw string) error
	ValidateNotInHistory(ctx context.Context, userID, raw string) error
	RecordChange(ctx context.Context, userID, newDigest string) error
}

// ResetLinks issues and redeems single-use password reset secrets. Lookup and Redeem return ""
// for a secret that is unknown, used or expired.
type ResetLinks interface {
	Issue(ctx context.Context, userID string) (string, time.Time, error)
	Lookup(ctx context.Context, raw string) (string, error)
	Redeem(ctx context.Context, raw string) (string, error)
}

// Tickets issues the signed pending-challenge ticket and session-bound access tokens.
type Tickets interface {
	IssueChallengeTicket(userID string) (string, time.Time, error)
	ValidateChallengeTicket(token string) (string, error)
	IssueAccess(sessionID, userID, role string) (string, time.Time, error)
}

// Deps holds the collaborators of AuthService. Audit and Events may be nil. Without Resets and
// Notifier the password reset flow is unavailable.
type Deps struct {
	Users     UserStore
	Hasher    PasswordHasher
	Guard     LoginGuard
	Challenge Challenger
	Devices   DeviceTrust
	Sessions  Sessions
	TwoFactor engine.TwoFactorPolicy
	Policy    password.Policy
	History   PasswordHistory
	Tickets   Tickets
	Resets    ResetLinks
	Notifier  notify.Notifier
	Audit     audit.AuditLogger
	Events    telemetry.EventEmitter
	// ResetURL is the page that accepts a reset secret in its token query parameter.
	ResetURL string
	// StoreTimeout bounds each store call; 0 uses DefaultStoreTimeout.
	StoreTimeout time.Duration
}

// LoginRequest is the input to Login.
type LoginRequest struct {
	Login    string
	Password string
	Client   Client
}

// LoginResult is the outcome of Login or VerifyTwoFactor. Exactly one of Session and ChallengeTicket is set.
type LoginResult struct {
	UserID  string
	Role    string
	Session *sessiondomain.Session

	ChallengeTicket    string
	ChallengeExpiresAt time.Time
	TwoFactorMethod    string
	// RememberAllowed reports whether the user may remember this device after verifying.
	RememberAllowed bool
}

// ChangePasswordRequest is the input to ChangePassword. SessionID is the caller's session, which stays active.
type ChangePasswordRequest struct {
	UserID    string
	SessionID string
	Current   string
	New       string
}

// AuthService implements the authentication flows. It holds no state of its own.
type AuthService struct {
	Deps
	retryDelay time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(deps Deps) *AuthService {
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = DefaultStoreTimeout
	}
	return &AuthService{Deps: deps, retryDelay: defaultRetryDelay}
}

// Login checks the lockout, the password and the two-factor policy. When a code is required it
// returns ErrTwoFactorRequired together with a result carrying the challenge ticket; otherwise it
// returns a result with the new session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	account := lockoutservice.NormalizeAccount(req.Login)
	if account == "" || req.Password == "" {
		s.Hasher.CompareDummy([]byte(req.Password))
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	locked, err := read(ctx, s, "lockout check", func(ctx context.Context) (bool, error) {
		return s.Guard.IsLocked(ctx, account)
	})
	if err != nil {
		return nil, s.loginError(err)
	}
	if locked {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		s.record(ctx, "", auditdomain.ActionLoginFailure, telemetrydomain.EventLoginFailed, "locked", req.Client, nil)
		return nil, ErrAccountLocked
	}

	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByLogin(ctx, account)
	})
	if err != nil {
		return nil, s.loginError(err)
	}
	if u == nil {
		s.Hasher.CompareDummy([]byte(req.Password))
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		s.record(ctx, "", auditdomain.ActionLoginFailure, telemetrydomain.EventLoginFailed, "failure", req.Client, nil)
		return nil, ErrInvalidCredentials
	}
	if s.Hasher.Compare(u.PasswordHash, []byte(req.Password)) != nil || !u.IsActive() {
		return nil, s.failLogin(ctx, u, account, req.Client)
	}

	if err := write(ctx, s, func(ctx context.Context) error { return s.Guard.OnSuccess(ctx, account) }); err != nil {
		log.Printf("auth: reset lockout for user %s: %v", u.ID, err)
	}

	trusted, err := read(ctx, s, "trusted device lookup", func(ctx context.Context) (bool, error) {
		return s.Devices.IsTrusted(ctx, u.ID, req.Client)
	})
	if err != nil {
		log.Printf("auth: %v; treating device as untrusted", err)
		trusted = false
	}
	decision, err := s.TwoFactor.EvaluateTwoFactor(ctx, u, trusted)
	if err != nil {
		log.Printf("auth: two-factor policy for user %s: %v; using fallback decision", u.ID, err)
	}

	if decision.Required {
		res, err := s.startChallenge(ctx, u, req.Client)
		if err != nil {
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			return nil, err
		}
		res.RememberAllowed = decision.RememberAllowed
		metrics.LoginAttempts.WithLabelValues("two_factor_required").Inc()
		return res, ErrTwoFactorRequired
	}

	sess, err := s.createSession(ctx, u, req.Client)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.record(ctx, u.ID, auditdomain.ActionLoginSuccess, telemetrydomain.EventLoginSucceeded, "success", req.Client,
		map[string]string{"trusted_device": fmt.Sprint(trusted), "session": telemetrydomain.SessionRef(sess.ID)})
	return &LoginResult{UserID: u.ID, Role: string(u.Role), Session: sess}, nil
}

// failLogin counts a credential failure. The attempt that reaches the limit still reports
// ErrInvalidCredentials; the lock applies from the next attempt.
func (s *AuthService) failLogin(ctx context.Context, u *userdomain.User, account string, client Client) error {
	metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
	var locked bool
	err := write(ctx, s, func(ctx context.Context) error {
		var err error
		locked, err = s.Guard.OnFailure(ctx, account)
		return err
	})
	if err != nil {
		log.Printf("auth: record failed login for user %s: %v", u.ID, err)
	}
	s.record(ctx, u.ID, auditdomain.ActionLoginFailure, telemetrydomain.EventLoginFailed, "failure", client, nil)
	if locked {
		metrics.AccountLockouts.Inc()
		s.record(ctx, u.ID, auditdomain.ActionAccountLocked, telemetrydomain.EventAccountLocked, "locked", client, nil)
	}
	return ErrInvalidCredentials
}

func (s *AuthService) loginError(err error) error {
	metrics.LoginAttempts.WithLabelValues("error").Inc()
	return err
}

func (s *AuthService) startChallenge(ctx context.Context, u *userdomain.User, client Client) (*LoginResult, error) {
	method := mfadomain.Method(u.TwoFactorMethod)
	if method == "" {
		method = mfadomain.MethodEmail
	}
	if err := s.issueCode(ctx, u, method, "login", client); err != nil {
		return nil, err
	}
	ticket, expiresAt, err := s.Tickets.IssueChallengeTicket(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue challenge ticket: %w", err)
	}
	return &LoginResult{
		UserID:             u.ID,
		Role:               string(u.Role),
		ChallengeTicket:    ticket,
		ChallengeExpiresAt: expiresAt,
		TwoFactorMethod:    string(method),
	}, nil
}

// issueCode sends a fresh code to the user's destinations for method and records the outcome.
func (s *AuthService) issueCode(ctx context.Context, u *userdomain.User, method mfadomain.Method, purpose string, client Client) error {
	var delivered bool
	err := write(ctx, s, func(ctx context.Context) error {
		var err error
		delivered, err = s.Challenge.Issue(ctx, mfaservice.Recipient{UserID: u.ID, Email: u.Email, Phone: u.Phone}, method)
		return err
	})
	if errors.Is(err, mfaservice.ErrUnsupportedMethod) {
		log.Printf("auth: user %s: %v", u.ID, err)
		return ErrNotificationDeliveryFailed
	}
	if err != nil {
		return err
	}
	attrs := map[string]string{"method": string(method), "purpose": purpose}
	if !delivered {
		s.record(ctx, u.ID, auditdomain.ActionTwoFactorIssued, telemetrydomain.EventTwoFactorIssued, "failure", client, attrs)
		return ErrNotificationDeliveryFailed
	}
	s.record(ctx, u.ID, auditdomain.ActionTwoFactorIssued, telemetrydomain.EventTwoFactorIssued, "success", client, attrs)
	return nil
}

func (s *AuthService) createSession(ctx context.Context, u *userdomain.User, client Client) (*sessiondomain.Session, error) {
	if active, err := s.Sessions.ListActive(ctx, u.ID); err == nil && len(active) >= s.Sessions.MaxSessions() {
		log.Printf("auth: %v for user %s; evicting oldest", ErrSessionLimitReached, u.ID)
		s.emit(ctx, u.ID, telemetrydomain.EventSessionEvicted, "success", client, map[string]string{"active": fmt.Sprint(len(active))})
	}
	var sess *sessiondomain.Session
	err := write(ctx, s, func(ctx context.Context) error {
		var err error
		sess, err = s.Sessions.Create(ctx, u.ID, client.IPAddress, client.UserAgent)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// VerifyTwoFactor completes a login started with Login. On success it creates the session and, when
// rememberDevice is set and the policy allows it, trusts the requesting browser.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, ticket, code string, rememberDevice bool, client Client) (*LoginResult, error) {
	u, err := s.ticketUser(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if err := s.verifyCode(ctx, u, code, client); err != nil {
		return nil, err
	}

	if rememberDevice {
		decision, err := s.TwoFactor.EvaluateTwoFactor(ctx, u, false)
		if err != nil {
			log.Printf("auth: two-factor policy for user %s: %v; using fallback decision", u.ID, err)
		}
		if decision.RememberAllowed {
			if d, err := s.Devices.Trust(ctx, u.ID, client); err != nil {
				log.Printf("auth: trust device for user %s: %v", u.ID, err)
			} else {
				s.record(ctx, u.ID, auditdomain.ActionDeviceTrusted, telemetrydomain.EventDeviceTrusted, "success", client, map[string]string{"label": d.Label})
			}
		}
	}

	sess, err := s.createSession(ctx, u, client)
	if err != nil {
		return nil, err
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.record(ctx, u.ID, auditdomain.ActionLoginSuccess, telemetrydomain.EventLoginSucceeded, "success", client,
		map[string]string{"two_factor": "true", "session": telemetrydomain.SessionRef(sess.ID)})
	return &LoginResult{UserID: u.ID, Role: string(u.Role), Session: sess}, nil
}

// verifyCode consumes the user's code. A wrong code counts one attempt against the user's valid token.
func (s *AuthService) verifyCode(ctx context.Context, u *userdomain.User, code string, client Client) error {
	err := write(ctx, s, func(ctx context.Context) error { return s.Challenge.Verify(ctx, u.ID, code) })
	if err != nil {
		if errors.Is(err, ErrInfrastructureTimeout) {
			return err
		}
		if rerr := write(ctx, s, func(ctx context.Context) error { return s.Challenge.RecordFailedAttempt(ctx, u.ID, code) }); rerr != nil {
			log.Printf("auth: record failed verification for user %s: %v", u.ID, rerr)
		}
		s.record(ctx, u.ID, auditdomain.ActionTwoFactorFailed, telemetrydomain.EventTwoFactorFailed, "failure", client, nil)
		switch {
		case errors.Is(err, mfaservice.ErrCodeExpired):
			return ErrTwoFactorCodeExpired
		case errors.Is(err, mfaservice.ErrAttemptsExhausted):
			return ErrTwoFactorAttemptsExhausted
		default:
			return ErrTwoFactorCodeInvalid
		}
	}
	s.record(ctx, u.ID, auditdomain.ActionTwoFactorVerified, telemetrydomain.EventTwoFactorVerified, "success", client, nil)
	return nil
}

// ResendTwoFactor issues a fresh code for a pending login, superseding the previous one.
func (s *AuthService) ResendTwoFactor(ctx context.Context, ticket string, client Client) error {
	u, err := s.ticketUser(ctx, ticket)
	if err != nil {
		return err
	}
	_, err = s.startChallenge(ctx, u, client)
	return err
}

// ticketUser resolves the user of a pending-challenge ticket. Any problem with the ticket or the
// account is reported as ErrTwoFactorCodeInvalid or ErrAccountLocked.
func (s *AuthService) ticketUser(ctx context.Context, ticket string) (*userdomain.User, error) {
	userID, err := s.Tickets.ValidateChallengeTicket(ticket)
	if err != nil {
		return nil, ErrTwoFactorCodeInvalid
	}
	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if !u.IsActive() {
		return nil, ErrTwoFactorCodeInvalid
	}
	locked, err := read(ctx, s, "lockout check", func(ctx context.Context) (bool, error) {
		return s.Guard.IsLocked(ctx, u.Username)
	})
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrAccountLocked
	}
	return u, nil
}

// Logout terminates the session. Unknown or already ended sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	sess, err := read(ctx, s, "session lookup", func(ctx context.Context) (*sessiondomain.Session, error) {
		sess, err := s.Sessions.Get(ctx, sessionID)
		if errors.Is(err, sessionservice.ErrSessionNotFound) {
			return nil, nil
		}
		return sess, err
	})
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := write(ctx, s, func(ctx context.Context) error { return s.Sessions.Terminate(ctx, sessionID) }); err != nil {
		return err
	}
	s.record(ctx, sess.UserID, auditdomain.ActionLogout, telemetrydomain.EventLogout, "success", Client{IPAddress: sess.IPAddress, UserAgent: sess.UserAgent},
		map[string]string{"session": telemetrydomain.SessionRef(sessionID)})
	return nil
}

// ChangePassword verifies the current password, enforces the policy and reuse rules, stores the new
// hash, records it in the history and ends every other session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByID(ctx, req.UserID)
	})
	if err != nil {
		return err
	}
	if !u.IsActive() || s.Hasher.Compare(u.PasswordHash, []byte(req.Current)) != nil {
		return ErrInvalidCredentials
	}
	if err := s.checkNewPassword(ctx, u, req.New); err != nil {
		return err
	}
	if err := s.storePassword(ctx, u.ID, req.New); err != nil {
		return err
	}
	n, err := s.Sessions.TerminateAllExcept(ctx, u.ID, req.SessionID)
	if err != nil {
		log.Printf("auth: terminate other sessions for user %s: %v", u.ID, err)
	}
	s.record(ctx, u.ID, auditdomain.ActionPasswordChanged, telemetrydomain.EventPasswordChanged, "success", Client{},
		map[string]string{"sessions_terminated": fmt.Sprint(n)})
	return nil
}

// checkNewPassword applies the password policy and the reuse rules to raw.
func (s *AuthService) checkNewPassword(ctx context.Context, u *userdomain.User, raw string) error {
	if err := s.Policy.Validate(raw); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicyViolation, err)
	}
	if err := s.History.ValidateNotCurrent(u.PasswordHash, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordReused, err)
	}
	err := write(ctx, s, func(ctx context.Context) error { return s.History.ValidateNotInHistory(ctx, u.ID, raw) })
	if err != nil {
		if errors.Is(err, passwordservice.ErrReused) {
			return fmt.Errorf("%w: %w", ErrPasswordReused, err)
		}
		return err
	}
	return nil
}

// storePassword hashes raw, stores it as the user's password and appends it to the history.
func (s *AuthService) storePassword(ctx context.Context, userID, raw string) error {
	digest, err := s.Hasher.Hash([]byte(raw))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := write(ctx, s, func(ctx context.Context) error { return s.Users.UpdatePasswordHash(ctx, userID, digest) }); err != nil {
		return err
	}
	if err := write(ctx, s, func(ctx context.Context) error { return s.History.RecordChange(ctx, userID, digest) }); err != nil {
		log.Printf("auth: record password history for user %s: %v", userID, err)
	}
	return nil
}

// RevokeDevice stops trusting one of the user's devices. Returns ErrDeviceNotTrusted when the
// device is not an active trusted device of the user.
func (s *AuthService) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	err := write(ctx, s, func(ctx context.Context) error { return s.Devices.Revoke(ctx, userID, deviceID) })
	if errors.Is(err, deviceservice.ErrDeviceNotFound) {
		return ErrDeviceNotTrusted
	}
	if err != nil {
		return err
	}
	if s.Audit != nil {
		s.Audit.LogEvent(ctx, userID, auditdomain.ActionDeviceRevoked, "trusted_device", "device="+deviceID)
	}
	return nil
}

// IssueAccessToken returns an access token for the admin API bound to an active session.
func (s *AuthService) IssueAccessToken(ctx context.Context, sessionID string) (string, time.Time, error) {
	sess, err := read(ctx, s, "session lookup", func(ctx context.Context) (*sessiondomain.Session, error) {
		sess, err := s.Sessions.Get(ctx, sessionID)
		if errors.Is(err, sessionservice.ErrSessionNotFound) {
			return nil, nil
		}
		return sess, err
	})
	if err != nil {
		return "", time.Time{}, err
	}
	if sess == nil || !sess.Active {
		return "", time.Time{}, ErrInvalidCredentials
	}
	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByID(ctx, sess.UserID)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	if !u.IsActive() {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.Tickets.IssueAccess(sess.ID, u.ID, string(u.Role))
}

// record writes the audit entry and emits the security event for one step of a flow.
func (s *AuthService) record(ctx context.Context, userID, action, eventType, outcome string, client Client, attrs map[string]string) {
	if s.Audit != nil {
		var meta []string
		for _, k := range slices.Sorted(maps.Keys(attrs)) {
			meta = append(meta, k+"="+attrs[k])
		}
		s.Audit.LogEvent(ctx, userID, action, "session", strings.Join(meta, " "))
	}
	s.emit(ctx, userID, eventType, outcome, client, attrs)
}

func (s *AuthService) emit(ctx context.Context, userID, eventType, outcome string, client Client, attrs map[string]string) {
	telemetry.EmitAsync(s.Events, ctx, &telemetrydomain.Event{
		Type:       eventType,
		UserID:     userID,
		IP:         client.IPAddress,
		UserAgent:  client.UserAgent,
		Outcome:    outcome,
		Attributes: attrs,
	})
}

// isDomainError reports whether err is a business outcome rather than a store failure.
func isDomainError(err error) bool {
	var pv *password.PolicyViolation
	return errors.Is(err, mfaservice.ErrCodeInvalid) ||
		errors.Is(err, mfaservice.ErrCodeExpired) ||
		errors.Is(err, mfaservice.ErrAttemptsExhausted) ||
		errors.Is(err, mfaservice.ErrUnsupportedMethod) ||
		errors.Is(err, sessionservice.ErrSessionNotFound) ||
		errors.Is(err, deviceservice.ErrDeviceNotFound) ||
		errors.Is(err, passwordservice.ErrReused) ||
		errors.As(err, &pv)
}

// read runs an idempotent store call with the store timeout, retrying once on an infrastructure
// failure. A failure that persists is returned wrapped in ErrInfrastructureTimeout.
func read[T any](ctx context.Context, s *AuthService, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
		defer cancel()
		v, err := fn(callCtx)
		if err != nil && isDomainError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil && !isDomainError(err) {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrInfrastructureTimeout, op, err)
	}
	return v, err
}

// write runs a store call that must not be repeated (it counts or creates something) with the store
// timeout. Infrastructure failures are wrapped in ErrInfrastructureTimeout; domain errors pass through.
func write(ctx context.Context, s *AuthService, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && !isDomainError(err) {
		return fmt.Errorf("%w: %v", ErrInfrastructureTimeout, err)
	}
	return err
}
