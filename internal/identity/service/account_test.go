package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	userdomain "clavionx/backend/internal/user/domain"
)

func (n *codeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.codes)
}

func TestTwoFactorEnrollment(t *testing.T) {
	f := newFixture(t, plainUser())
	ctx := context.Background()

	settings, err := f.svc.TwoFactorSettings(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, []userdomain.TwoFactorMethod{userdomain.TwoFactorEmail}, settings.Available)

	for _, m := range []userdomain.TwoFactorMethod{userdomain.TwoFactorPhone, userdomain.TwoFactorBoth, "FAX"} {
		err := f.svc.StartTwoFactorEnrollment(ctx, "u-1", m, laptop)
		assert.ErrorIs(t, err, ErrTwoFactorMethodUnavailable, "method %s", m)
	}
	assert.Zero(t, f.notifier.count())

	require.NoError(t, f.svc.StartTwoFactorEnrollment(ctx, "u-1", userdomain.TwoFactorEmail, laptop))
	code := f.notifier.last(t)
	err = f.svc.ConfirmTwoFactorEnrollment(ctx, "u-1", userdomain.TwoFactorEmail, wrongCode(code), laptop)
	require.ErrorIs(t, err, ErrTwoFactorCodeInvalid)

	// Nothing changes until the code is confirmed.
	_, err = f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmTwoFactorEnrollment(ctx, "u-1", userdomain.TwoFactorEmail, code, laptop))
	settings, err = f.svc.TwoFactorSettings(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, userdomain.TwoFactorEmail, settings.Method)

	_, err = f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
	assert.ErrorIs(t, err, ErrTwoFactorRequired)
}

func TestTwoFactorEnrollment_PhoneMethods(t *testing.T) {
	u := plainUser()
	u.Phone = "9876543210"
	f := newFixture(t, u)
	ctx := context.Background()

	settings, err := f.svc.TwoFactorSettings(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []userdomain.TwoFactorMethod{userdomain.TwoFactorEmail, userdomain.TwoFactorPhone, userdomain.TwoFactorBoth}, settings.Available)

	require.NoError(t, f.svc.StartTwoFactorEnrollment(ctx, "u-1", userdomain.TwoFactorBoth, laptop))
	require.NoError(t, f.svc.ConfirmTwoFactorEnrollment(ctx, "u-1", userdomain.TwoFactorBoth, f.notifier.last(t), laptop))

	res, err := f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
	require.ErrorIs(t, err, ErrTwoFactorRequired)
	assert.Equal(t, "BOTH", res.TwoFactorMethod)
}

func TestDisableTwoFactor_VoidsOutstandingCodes(t *testing.T) {
	f := newFixture(t, twoFactorUser(userdomain.RoleStudent))
	ctx := context.Background()

	pending, err := f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
	require.ErrorIs(t, err, ErrTwoFactorRequired)
	code := f.notifier.last(t)

	assert.ErrorIs(t, f.svc.DisableTwoFactor(ctx, "u-1", "Wrong#Horse1", laptop), ErrInvalidCredentials)
	require.NoError(t, f.svc.DisableTwoFactor(ctx, "u-1", alicePassword, laptop))

	_, err = f.svc.VerifyTwoFactor(ctx, pending.ChallengeTicket, code, false, laptop)
	assert.ErrorIs(t, err, ErrTwoFactorCodeInvalid, "codes issued before disabling are void")

	settings, err := f.svc.TwoFactorSettings(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, userdomain.TwoFactorEmail, settings.Method, "method is kept for re-enabling")

	res, err := f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
	require.NoError(t, err)
	assert.NotNil(t, res.Session)
}

func TestSendTestCode(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, plainUser())
	assert.ErrorIs(t, f.svc.SendTestCode(ctx, "u-1", laptop), ErrTwoFactorNotEnabled)

	f = newFixture(t, twoFactorUser(userdomain.RoleStudent))
	require.NoError(t, f.svc.SendTestCode(ctx, "u-1", laptop))
	assert.Equal(t, 1, f.notifier.count())

	f.notifier.fail = true
	assert.ErrorIs(t, f.svc.SendTestCode(ctx, "u-1", laptop), ErrNotificationDeliveryFailed)

	assert.ErrorIs(t, f.svc.SendTestCode(ctx, "missing", laptop), ErrInvalidCredentials)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t, plainUser())
	ctx := context.Background()
	var sessions []string
	for i := 0; i < 2; i++ {
		res, err := f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
		require.NoError(t, err)
		sessions = append(sessions, res.Session.ID)
	}

	require.NoError(t, f.svc.RequestPasswordReset(ctx, " ALICE@example.com ", laptop))
	raw := f.notifier.last(t)
	assert.Contains(t, f.notifier.texts[0], "https://app.example.com/reset-password?token="+raw)

	ok, err := f.svc.ValidateResetToken(ctx, raw)
	require.NoError(t, err)
	assert.True(t, ok)

	err = f.svc.ResetPassword(ctx, raw, "short", laptop)
	require.ErrorIs(t, err, ErrPasswordPolicyViolation)
	err = f.svc.ResetPassword(ctx, raw, alicePassword, laptop)
	require.ErrorIs(t, err, ErrPasswordReused)
	ok, _ = f.svc.ValidateResetToken(ctx, raw)
	assert.True(t, ok, "a rejected password does not use up the link")

	require.NoError(t, f.svc.ResetPassword(ctx, raw, "Fresh#Start22", laptop))

	for _, id := range sessions {
		active, err := f.sessions.IsActive(ctx, id)
		require.NoError(t, err)
		assert.False(t, active, "every session ends after a reset")
	}
	_, err = f.svc.Login(ctx, LoginRequest{Login: "alice", Password: alicePassword, Client: laptop})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginRequest{Login: "alice", Password: "Fresh#Start22", Client: laptop})
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, raw, "Another#Pass33", laptop), ErrResetTokenInvalid)
	ok, err = f.svc.ValidateResetToken(ctx, raw)
	require.NoError(t, err)
	assert.False(t, ok)

	// The old password is now in the history.
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", laptop))
	err = f.svc.ResetPassword(ctx, f.notifier.last(t), alicePassword, laptop)
	assert.ErrorIs(t, err, ErrPasswordReused)
}

func TestPasswordReset_SilentForUnknownAccounts(t *testing.T) {
	u := plainUser()
	f := newFixture(t, u)
	ctx := context.Background()

	for _, email := range []string{"mallory@example.com", "alice", ""} {
		require.NoError(t, f.svc.RequestPasswordReset(ctx, email, laptop), "email %q", email)
	}
	assert.Zero(t, f.notifier.count())

	u.Status = userdomain.UserStatusDisabled
	disabled := newFixture(t, u)
	require.NoError(t, disabled.svc.RequestPasswordReset(ctx, "alice@example.com", laptop))
	assert.Zero(t, disabled.notifier.count())
}

func TestPasswordReset_Expired(t *testing.T) {
	f := newFixture(t, plainUser())
	ctx := context.Background()
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", laptop))
	raw := f.notifier.last(t)

	f.clk.Advance(61 * time.Minute)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, raw, "Fresh#Start22", laptop), ErrResetTokenInvalid)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "forged", "Fresh#Start22", laptop), ErrResetTokenInvalid)
}

func TestPasswordReset_NewLinkVoidsOld(t *testing.T) {
	f := newFixture(t, plainUser())
	ctx := context.Background()
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", laptop))
	first := f.notifier.last(t)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", laptop))

	ok, err := f.svc.ValidateResetToken(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordReset_DeliveryFailure(t *testing.T) {
	f := newFixture(t, plainUser())
	f.notifier.fail = true
	err := f.svc.RequestPasswordReset(context.Background(), "alice@example.com", laptop)
	assert.ErrorIs(t, err, ErrNotificationDeliveryFailed)
}
