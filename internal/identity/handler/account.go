package handler

import (
	"errors"
	"log"
	"net/http"

	"clavionx/backend/internal/identity/service"
	"clavionx/backend/internal/platform/httpx"
	"clavionx/backend/internal/server/interceptors"
	"clavionx/backend/internal/server/middleware"
	userdomain "clavionx/backend/internal/user/domain"
)

type twoFactorMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=EMAIL PHONE BOTH"`
}

type twoFactorConfirmRequest struct {
	Method string `json:"method" validate:"required,oneof=EMAIL PHONE BOTH"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

type disableTwoFactorRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=200"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,max=200"`
}

type twoFactorSettingsResponse struct {
	Enabled   bool     `json:"enabled"`
	Method    string   `json:"method"`
	Available []string `json:"available_methods"`
}

type resetTokenResponse struct {
	Valid bool `json:"valid"`
}

// TwoFactorSettings handles GET /account/2fa.
func (h *Handler) TwoFactorSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	st, err := h.auth.TwoFactorSettings(r.Context(), userID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	available := make([]string, 0, len(st.Available))
	for _, m := range st.Available {
		available = append(available, string(m))
	}
	httpx.WriteJSON(w, http.StatusOK, twoFactorSettingsResponse{Enabled: st.Enabled, Method: string(st.Method), Available: available})
}

// EnableTwoFactor handles POST /account/2fa/enable. It sends a code over the chosen method.
func (h *Handler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorMethodRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, _ := interceptors.GetUserID(r.Context())
	err := h.auth.StartTwoFactorEnrollment(r.Context(), userID, userdomain.TwoFactorMethod(req.Method), middleware.RequestClient(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ConfirmTwoFactor handles POST /account/2fa/verify.
func (h *Handler) ConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorConfirmRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, _ := interceptors.GetUserID(r.Context())
	err := h.auth.ConfirmTwoFactorEnrollment(r.Context(), userID, userdomain.TwoFactorMethod(req.Method), req.Code, middleware.RequestClient(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DisableTwoFactor handles POST /account/2fa/disable.
func (h *Handler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req disableTwoFactorRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, _ := interceptors.GetUserID(r.Context())
	err := h.auth.DisableTwoFactor(r.Context(), userID, req.CurrentPassword, middleware.RequestClient(r))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, msgWrongPassword)
	default:
		writeAuthError(w, err)
	}
}

// TestTwoFactor handles POST /account/2fa/test.
func (h *Handler) TestTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	if err := h.auth.SendTestCode(r.Context(), userID, middleware.RequestClient(r)); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ForgotPassword handles POST /auth/password/forgot. The answer is 202 whether or not the address
// belongs to an account.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email, middleware.RequestClient(r)); err != nil {
		log.Printf("http: password reset request: %v", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

// CheckResetToken handles GET /auth/password/reset?token=.
func (h *Handler) CheckResetToken(w http.ResponseWriter, r *http.Request) {
	ok, err := h.auth.ValidateResetToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resetTokenResponse{Valid: ok})
}

// ResetPassword handles POST /auth/password/reset.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword, middleware.RequestClient(r)); err != nil {
		writePasswordError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
