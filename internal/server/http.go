package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	devicehandler "clavionx/backend/internal/device/handler"
	identityhandler "clavionx/backend/internal/identity/handler"
	"clavionx/backend/internal/platform/httpx"
	"clavionx/backend/internal/server/middleware"
	sessionhandler "clavionx/backend/internal/session/handler"
)

// requestTimeout bounds one HTTP request end to end.
const requestTimeout = 30 * time.Second

// HTTPDeps holds the handlers mounted by NewRouter. DevOTP is mounted only when non-nil.
type HTTPDeps struct {
	Auth     *identityhandler.Handler
	Sessions *sessionhandler.Handler
	Devices  *devicehandler.Handler

	SessionStore middleware.SessionStore
	CookieName   string
	// RateLimit applies to the unauthenticated /auth endpoints, password reset included; nil disables it.
	RateLimit *middleware.RateLimiter

	Health  http.Handler
	Metrics http.Handler
	DevOTP  http.Handler
}

// NewRouter returns the chi router for the browser-facing API.
func NewRouter(d HTTPDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.WithClientIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chimw.Timeout(requestTimeout))

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.DevOTP != nil {
		r.Method(http.MethodGet, "/dev/otp", d.DevOTP)
	}

	requireSession := middleware.RequireSession(d.CookieName, d.SessionStore)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.RateLimit != nil {
				r.Use(d.RateLimit.Middleware)
			}
			r.Post("/login", d.Auth.Login)
			r.Post("/2fa/verify", d.Auth.VerifyTwoFactor)
			r.Post("/2fa/resend", d.Auth.ResendTwoFactor)
			r.Post("/password/forgot", d.Auth.ForgotPassword)
			r.Get("/password/reset", d.Auth.CheckResetToken)
			r.Post("/password/reset", d.Auth.ResetPassword)
		})
		r.Post("/logout", d.Auth.Logout)
		r.With(requireSession).Post("/token", d.Auth.AccessToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/sessions", d.Sessions.List)
		r.Delete("/sessions/{ref}", d.Sessions.Terminate)
		r.Post("/sessions/terminate-others", d.Sessions.TerminateOthers)

		r.Get("/devices", d.Devices.List)
		r.Delete("/devices/{id}", d.Devices.Revoke)
		r.Delete("/devices", d.Devices.RevokeAll)

		r.Post("/account/password", d.Auth.ChangePassword)
		r.Get("/account/2fa", d.Auth.TwoFactorSettings)
		r.Post("/account/2fa/enable", d.Auth.EnableTwoFactor)
		r.Post("/account/2fa/verify", d.Auth.ConfirmTwoFactor)
		r.Post("/account/2fa/disable", d.Auth.DisableTwoFactor)
		r.Post("/account/2fa/test", d.Auth.TestTwoFactor)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not found")
	})
	return r
}
