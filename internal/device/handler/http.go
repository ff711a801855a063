// Package handler lets a signed-in user review and revoke remembered browsers.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clavionx/backend/internal/device/domain"
	identityservice "clavionx/backend/internal/identity/service"
	"clavionx/backend/internal/platform/httpx"
	"clavionx/backend/internal/server/interceptors"
)

// Devices is the trusted device store subset used by the handler.
type Devices interface {
	List(ctx context.Context, userID string) ([]*domain.TrustedDevice, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Revoker revokes a single device and audits it.
type Revoker interface {
	RevokeDevice(ctx context.Context, userID, deviceID string) error
}

// Handler serves /devices.
type Handler struct {
	devices Devices
	revoker Revoker
}

// NewHandler returns a Handler.
func NewHandler(devices Devices, revoker Revoker) *Handler {
	return &Handler{devices: devices, revoker: revoker}
}

type deviceView struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	IPAddress string    `json:"ip_address"`
	TrustedAt time.Time `json:"trusted_at"`
	ExpiresAt time.Time `json:"expires_at"`
	LastUsed  time.Time `json:"last_used"`
}

// List handles GET /devices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	devices, err := h.devices.List(r.Context(), userID)
	if err != nil {
		log.Printf("http: list devices: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
		return
	}
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceView{
			ID:        d.ID,
			Label:     d.Label,
			IPAddress: d.IPAddress,
			TrustedAt: d.TrustedAt,
			ExpiresAt: d.ExpiresAt,
			LastUsed:  d.LastUsed,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// Revoke handles DELETE /devices/{id}.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	err := h.revoker.RevokeDevice(r.Context(), userID, chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, identityservice.ErrDeviceNotTrusted):
		httpx.WriteError(w, http.StatusNotFound, "device not found")
	default:
		log.Printf("http: revoke device: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
	}
}

// RevokeAll handles DELETE /devices.
func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	n, err := h.devices.RevokeAll(r.Context(), userID)
	if err != nil {
		log.Printf("http: revoke devices: %v", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "please try again")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}
