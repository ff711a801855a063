// Package handler lets a signed-in user list and end their own sessions.
package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clavionx/backend/internal/platform/httpx"
	"clavionx/backend/internal/server/interceptors"
	"clavionx/backend/internal/session/domain"
)

// refLen is the length of the session ID prefix shown to users. Full IDs are bearer secrets.
const refLen = 8

// Sessions is the registry subset used by the handler.
type Sessions interface {
	ListActive(ctx context.Context, userID string) ([]*domain.Session, error)
	Terminate(ctx context.Context, id string) error
	TerminateAllExcept(ctx context.Context, userID, keepID string) (int, error)
}

// Handler serves /sessions.
type Handler struct {
	sessions Sessions
}

// NewHandler returns a Handler over sessions.
func NewHandler(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

type sessionView struct {
	Ref          string    `json:"ref"`
	DeviceLabel  string    `json:"device_label"`
	IPAddress    string    `json:"ip_address"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
	Current      bool      `json:"current"`
}

func ref(id string) string {
	if len(id) > refLen {
		return id[:refLen]
	}
	return id
}

// List handles GET /sessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	current, _ := interceptors.GetSessionID(r.Context())
	sessions, err := h.sessions.ListActive(r.Context(), userID)
	if err != nil {
		log.Printf("http: list sessions: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			Ref:          ref(s.ID),
			DeviceLabel:  s.DeviceLabel,
			IPAddress:    s.IPAddress,
			LoginTime:    s.LoginTime,
			LastActivity: s.LastActivity,
			Current:      s.ID == current,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// Terminate handles DELETE /sessions/{ref}. Only the caller's own active sessions can be ended.
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	want := strings.TrimSpace(chi.URLParam(r, "ref"))
	if len(want) < refLen {
		httpx.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	sessions, err := h.sessions.ListActive(r.Context(), userID)
	if err != nil {
		log.Printf("http: list sessions: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
		return
	}
	for _, s := range sessions {
		if ref(s.ID) != want {
			continue
		}
		if err := h.sessions.Terminate(r.Context(), s.ID); err != nil {
			log.Printf("http: terminate session: %v", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.WriteError(w, http.StatusNotFound, "session not found")
}

// TerminateOthers handles POST /sessions/terminate-others.
func (h *Handler) TerminateOthers(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	current, _ := interceptors.GetSessionID(r.Context())
	n, err := h.sessions.TerminateAllExcept(r.Context(), userID, current)
	if err != nil {
		log.Printf("http: terminate other sessions: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"terminated": n})
}
