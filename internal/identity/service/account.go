package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	auditdomain "clavionx/backend/internal/audit/domain"
	mfadomain "clavionx/backend/internal/mfa/domain"
	"clavionx/backend/internal/mfa/notify"
	telemetrydomain "clavionx/backend/internal/telemetry/domain"
	userdomain "clavionx/backend/internal/user/domain"
)

var errResetUnavailable = errors.New("password reset is not configured")

// TwoFactorSettings is the user's two-factor state and the methods their contact details allow.
type TwoFactorSettings struct {
	Enabled   bool
	Method    userdomain.TwoFactorMethod
	Available []userdomain.TwoFactorMethod
}

// availableMethods lists the methods u has destinations for.
func availableMethods(u *userdomain.User) []userdomain.TwoFactorMethod {
	hasEmail := strings.TrimSpace(u.Email) != ""
	hasPhone := strings.TrimSpace(u.Phone) != ""
	var out []userdomain.TwoFactorMethod
	if hasEmail {
		out = append(out, userdomain.TwoFactorEmail)
	}
	if hasPhone {
		out = append(out, userdomain.TwoFactorPhone)
	}
	if hasEmail && hasPhone {
		out = append(out, userdomain.TwoFactorBoth)
	}
	return out
}

func methodAvailable(u *userdomain.User, m userdomain.TwoFactorMethod) bool {
	for _, a := range availableMethods(u) {
		if a == m {
			return true
		}
	}
	return false
}

// activeUser loads the user behind a session. A missing or disabled account is ErrInvalidCredentials.
func (s *AuthService) activeUser(ctx context.Context, userID string) (*userdomain.User, error) {
	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if !u.IsActive() {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// TwoFactorSettings returns the user's current two-factor state.
func (s *AuthService) TwoFactorSettings(ctx context.Context, userID string) (*TwoFactorSettings, error) {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TwoFactorSettings{Enabled: u.TwoFactorEnabled, Method: u.TwoFactorMethod, Available: availableMethods(u)}, nil
}

// StartTwoFactorEnrollment sends a code over method so the user can prove they receive it. Nothing
// changes on the account until ConfirmTwoFactorEnrollment succeeds.
func (s *AuthService) StartTwoFactorEnrollment(ctx context.Context, userID string, method userdomain.TwoFactorMethod, client Client) error {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if !methodAvailable(u, method) {
		return ErrTwoFactorMethodUnavailable
	}
	return s.issueCode(ctx, u, mfadomain.Method(method), "enrollment", client)
}

// ConfirmTwoFactorEnrollment verifies the enrolment code and turns two-factor on with method.
func (s *AuthService) ConfirmTwoFactorEnrollment(ctx context.Context, userID string, method userdomain.TwoFactorMethod, code string, client Client) error {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if !methodAvailable(u, method) {
		return ErrTwoFactorMethodUnavailable
	}
	if err := s.verifyCode(ctx, u, code, client); err != nil {
		return err
	}
	if err := write(ctx, s, func(ctx context.Context) error { return s.Users.SetTwoFactor(ctx, u.ID, true, method) }); err != nil {
		return err
	}
	s.record(ctx, u.ID, auditdomain.ActionTwoFactorEnabled, telemetrydomain.EventTwoFactorEnabled, "success", client,
		map[string]string{"method": string(method)})
	return nil
}

// DisableTwoFactor turns two-factor off after re-checking the password and voids every outstanding code.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID, currentPassword string, client Client) error {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if s.Hasher.Compare(u.PasswordHash, []byte(currentPassword)) != nil {
		return ErrInvalidCredentials
	}
	method := u.TwoFactorMethod
	if !method.Valid() {
		method = userdomain.TwoFactorEmail
	}
	if err := write(ctx, s, func(ctx context.Context) error { return s.Users.SetTwoFactor(ctx, u.ID, false, method) }); err != nil {
		return err
	}
	var voided int
	err = write(ctx, s, func(ctx context.Context) error {
		var err error
		voided, err = s.Challenge.InvalidateAll(ctx, u.ID)
		return err
	})
	if err != nil {
		log.Printf("auth: void codes for user %s: %v", u.ID, err)
	}
	s.record(ctx, u.ID, auditdomain.ActionTwoFactorDisabled, telemetrydomain.EventTwoFactorDisabled, "success", client,
		map[string]string{"codes_voided": fmt.Sprint(voided)})
	return nil
}

// SendTestCode sends a code over the user's configured method so they can check delivery.
func (s *AuthService) SendTestCode(ctx context.Context, userID string, client Client) error {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	return s.issueCode(ctx, u, mfadomain.Method(u.TwoFactorMethod), "test", client)
}

// RequestPasswordReset mails a single-use reset link to the account registered under email. An
// unknown or disabled account gets no mail and no error.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, client Client) error {
	if s.Resets == nil || s.Notifier == nil {
		return errResetUnavailable
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByLogin(ctx, email)
	})
	if err != nil {
		return err
	}
	if !u.IsActive() || !strings.EqualFold(u.Email, email) {
		s.emit(ctx, "", telemetrydomain.EventPasswordResetRequested, "unknown", client, nil)
		return nil
	}

	var (
		raw       string
		expiresAt time.Time
	)
	err = write(ctx, s, func(ctx context.Context) error {
		var err error
		raw, expiresAt, err = s.Resets.Issue(ctx, u.ID)
		return err
	})
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Use this link to choose a new password: %s\nThe link expires at %s. If you did not ask for it, ignore this message.",
		s.resetLink(raw), expiresAt.UTC().Format(time.RFC1123))
	msg := notify.Message{Subject: "Password reset", Text: text, Code: raw}
	if err := s.Notifier.Send(ctx, notify.ChannelEmail, u.Email, msg); err != nil {
		log.Printf("auth: reset link delivery for user %s failed: %v", u.ID, err)
		s.record(ctx, u.ID, auditdomain.ActionPasswordResetRequested, telemetrydomain.EventPasswordResetRequested, "failure", client, nil)
		return ErrNotificationDeliveryFailed
	}
	s.record(ctx, u.ID, auditdomain.ActionPasswordResetRequested, telemetrydomain.EventPasswordResetRequested, "success", client, nil)
	return nil
}

func (s *AuthService) resetLink(raw string) string {
	sep := "?"
	if strings.Contains(s.ResetURL, "?") {
		sep = "&"
	}
	return s.ResetURL + sep + "token=" + url.QueryEscape(raw)
}

// resetUser returns the active user a reset secret was issued to, or nil.
func (s *AuthService) resetUser(ctx context.Context, raw string) (*userdomain.User, error) {
	if s.Resets == nil {
		return nil, errResetUnavailable
	}
	userID, err := read(ctx, s, "reset token lookup", func(ctx context.Context) (string, error) {
		return s.Resets.Lookup(ctx, raw)
	})
	if err != nil || userID == "" {
		return nil, err
	}
	u, err := read(ctx, s, "user lookup", func(ctx context.Context) (*userdomain.User, error) {
		return s.Users.GetByID(ctx, userID)
	})
	if err != nil || !u.IsActive() {
		return nil, err
	}
	return u, nil
}

// ValidateResetToken reports whether raw is a usable reset secret of an active account.
func (s *AuthService) ValidateResetToken(ctx context.Context, raw string) (bool, error) {
	u, err := s.resetUser(ctx, raw)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// ResetPassword sets a new password through a reset secret. The password must pass the policy and the
// reuse rules; only then is the secret consumed. Every session of the user is ended.
func (s *AuthService) ResetPassword(ctx context.Context, raw, newPassword string, client Client) error {
	u, err := s.resetUser(ctx, raw)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrResetTokenInvalid
	}
	if err := s.checkNewPassword(ctx, u, newPassword); err != nil {
		return err
	}
	var redeemed string
	err = write(ctx, s, func(ctx context.Context) error {
		var err error
		redeemed, err = s.Resets.Redeem(ctx, raw)
		return err
	})
	if err != nil {
		return err
	}
	if redeemed != u.ID {
		return ErrResetTokenInvalid
	}
	if err := s.storePassword(ctx, u.ID, newPassword); err != nil {
		return err
	}
	n, err := s.Sessions.TerminateAll(ctx, u.ID)
	if err != nil {
		log.Printf("auth: terminate sessions for user %s: %v", u.ID, err)
	}
	s.record(ctx, u.ID, auditdomain.ActionPasswordReset, telemetrydomain.EventPasswordReset, "success", client,
		map[string]string{"sessions_terminated": fmt.Sprint(n)})
	return nil
}
