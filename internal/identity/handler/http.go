// Package handler exposes the authentication flows over HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"clavionx/backend/internal/identity/service"
	"clavionx/backend/internal/password"
	passwordservice "clavionx/backend/internal/password/service"
	"clavionx/backend/internal/platform/httpx"
	"clavionx/backend/internal/server/interceptors"
	"clavionx/backend/internal/server/middleware"
	userdomain "clavionx/backend/internal/user/domain"
)

// Messages shown to clients. Credential and two-factor failures are deliberately indistinct.
const (
	msgInvalidCredentials = "invalid username or password"
	msgAccountLocked      = "account locked, try again later"
	msgInvalidCode        = "invalid or expired verification code"
	msgDeliveryFailed     = "verification code could not be sent"
	msgTryAgain           = "please try again"
	msgWrongPassword      = "current password is incorrect"
	msgMethodUnavailable  = "this two-factor method needs contact details the account does not have"
	msgTwoFactorOff       = "two-factor authentication is not enabled"
	msgResetLinkInvalid   = "reset link is invalid or expired"
)

// AuthFlows is the subset of service.AuthService used by the handler.
type AuthFlows interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, ticket, code string, rememberDevice bool, client service.Client) (*service.LoginResult, error)
	ResendTwoFactor(ctx context.Context, ticket string, client service.Client) error
	Logout(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, req service.ChangePasswordRequest) error
	IssueAccessToken(ctx context.Context, sessionID string) (string, time.Time, error)

	TwoFactorSettings(ctx context.Context, userID string) (*service.TwoFactorSettings, error)
	StartTwoFactorEnrollment(ctx context.Context, userID string, method userdomain.TwoFactorMethod, client service.Client) error
	ConfirmTwoFactorEnrollment(ctx context.Context, userID string, method userdomain.TwoFactorMethod, code string, client service.Client) error
	DisableTwoFactor(ctx context.Context, userID, currentPassword string, client service.Client) error
	SendTestCode(ctx context.Context, userID string, client service.Client) error

	RequestPasswordReset(ctx context.Context, email string, client service.Client) error
	ValidateResetToken(ctx context.Context, raw string) (bool, error)
	ResetPassword(ctx context.Context, raw, newPassword string, client service.Client) error
}

// Handler serves the /auth and /account endpoints.
type Handler struct {
	auth   AuthFlows
	cookie http.Cookie
}

// NewHandler returns a Handler that sets session cookies shaped like cookie.
func NewHandler(auth AuthFlows, cookie http.Cookie) *Handler {
	return &Handler{auth: auth, cookie: cookie}
}

type loginRequest struct {
	Login    string `json:"login" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=200"`
}

type verifyRequest struct {
	Ticket         string `json:"ticket" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
	RememberDevice bool   `json:"remember_device"`
}

type resendRequest struct {
	Ticket string `json:"ticket" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=200"`
	NewPassword     string `json:"new_password" validate:"required,max=200"`
}

type signedInResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type challengeResponse struct {
	TwoFactorRequired bool      `json:"two_factor_required"`
	Ticket            string    `json:"ticket"`
	ExpiresAt         time.Time `json:"expires_at"`
	Method            string    `json:"method"`
	RememberAllowed   bool      `json:"remember_allowed"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.auth.Login(r.Context(), service.LoginRequest{
		Login:    req.Login,
		Password: req.Password,
		Client:   middleware.RequestClient(r),
	})
	if errors.Is(err, service.ErrTwoFactorRequired) {
		httpx.WriteJSON(w, http.StatusAccepted, challengeResponse{
			TwoFactorRequired: true,
			Ticket:            res.ChallengeTicket,
			ExpiresAt:         res.ChallengeExpiresAt,
			Method:            res.TwoFactorMethod,
			RememberAllowed:   res.RememberAllowed,
		})
		return
	}
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.signIn(w, res)
}

// VerifyTwoFactor handles POST /auth/2fa/verify.
func (h *Handler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.Decode(r, &req); err != nil {
		// A malformed code is reported like a wrong one.
		httpx.WriteError(w, http.StatusUnauthorized, msgInvalidCode)
		return
	}
	res, err := h.auth.VerifyTwoFactor(r.Context(), req.Ticket, req.Code, req.RememberDevice, middleware.RequestClient(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.signIn(w, res)
}

// ResendTwoFactor handles POST /auth/2fa/resend.
func (h *Handler) ResendTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.auth.ResendTwoFactor(r.Context(), req.Ticket, middleware.RequestClient(r)); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /auth/logout. It always clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookie.Name); err == nil && c.Value != "" {
		if err := h.auth.Logout(r.Context(), c.Value); err != nil {
			log.Printf("http: logout: %v", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, msgTryAgain)
			return
		}
	}
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// AccessToken handles POST /auth/token and requires a session.
func (h *Handler) AccessToken(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := interceptors.GetSessionID(r.Context())
	tok, exp, err := h.auth.IssueAccessToken(r.Context(), sessionID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: tok, TokenType: "Bearer", ExpiresAt: exp})
}

// ChangePassword handles POST /account/password and requires a session.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, _ := interceptors.GetUserID(r.Context())
	sessionID, _ := interceptors.GetSessionID(r.Context())
	err := h.auth.ChangePassword(r.Context(), service.ChangePasswordRequest{
		UserID:    userID,
		SessionID: sessionID,
		Current:   req.CurrentPassword,
		New:       req.NewPassword,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, msgWrongPassword)
	default:
		writePasswordError(w, err)
	}
}

// writePasswordError shows policy and reuse violations to the user; anything else goes to writeAuthError.
func writePasswordError(w http.ResponseWriter, err error) {
	var pv *password.PolicyViolation
	var rv *passwordservice.ReuseViolation
	switch {
	case errors.As(err, &pv):
		httpx.WriteError(w, http.StatusBadRequest, pv.Message)
	case errors.As(err, &rv):
		httpx.WriteError(w, http.StatusBadRequest, rv.Message)
	default:
		writeAuthError(w, err)
	}
}

func (h *Handler) signIn(w http.ResponseWriter, res *service.LoginResult) {
	c := h.cookie
	c.Value = res.Session.ID
	http.SetCookie(w, &c)
	httpx.WriteJSON(w, http.StatusOK, signedInResponse{UserID: res.UserID, Role: res.Role})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	c := h.cookie
	c.Value = ""
	c.MaxAge = -1
	http.SetCookie(w, &c)
}

// writeAuthError maps service errors to the generic client messages.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, service.ErrAccountLocked):
		httpx.WriteError(w, http.StatusLocked, msgAccountLocked)
	case errors.Is(err, service.ErrTwoFactorCodeInvalid),
		errors.Is(err, service.ErrTwoFactorCodeExpired),
		errors.Is(err, service.ErrTwoFactorAttemptsExhausted):
		httpx.WriteError(w, http.StatusUnauthorized, msgInvalidCode)
	case errors.Is(err, service.ErrNotificationDeliveryFailed):
		httpx.WriteError(w, http.StatusBadGateway, msgDeliveryFailed)
	case errors.Is(err, service.ErrTwoFactorMethodUnavailable):
		httpx.WriteError(w, http.StatusBadRequest, msgMethodUnavailable)
	case errors.Is(err, service.ErrTwoFactorNotEnabled):
		httpx.WriteError(w, http.StatusConflict, msgTwoFactorOff)
	case errors.Is(err, service.ErrResetTokenInvalid):
		httpx.WriteError(w, http.StatusBadRequest, msgResetLinkInvalid)
	case errors.Is(err, service.ErrInfrastructureTimeout):
		log.Printf("http: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, msgTryAgain)
	default:
		log.Printf("http: unexpected auth error: %v", err)
		httpx.WriteError(w, http.StatusInternalServerError, msgTryAgain)
	}
}
