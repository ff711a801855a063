package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"

	"clavionx/backend/internal/platform/httpx"
	"clavionx/backend/internal/server/interceptors"
	sessiondomain "clavionx/backend/internal/session/domain"
	sessionservice "clavionx/backend/internal/session/service"
)

// SessionStore is the part of the session registry the cookie middleware needs.
type SessionStore interface {
	Get(ctx context.Context, id string) (*sessiondomain.Session, error)
	Touch(ctx context.Context, id string) error
}

// RequireSession rejects requests without an active session cookie. On success it refreshes the
// session's last activity and stores the user and session IDs in the request context.
func RequireSession(cookieName string, sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "not signed in")
				return
			}
			sess, err := sessions.Get(r.Context(), c.Value)
			if errors.Is(err, sessionservice.ErrSessionNotFound) || (err == nil && !sess.Active) {
				httpx.WriteError(w, http.StatusUnauthorized, "not signed in")
				return
			}
			if err != nil {
				log.Printf("http: session lookup: %v", err)
				httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
				return
			}
			if err := sessions.Touch(r.Context(), sess.ID); err != nil {
				log.Printf("http: touch session %s: %v", sessionRef(sess.ID), err)
			}
			ctx := interceptors.WithIdentity(r.Context(), sess.UserID, "", sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
