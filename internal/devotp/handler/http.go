// Package handler exposes the dev OTP store over HTTP. Only mounted when dev OTP mode is enabled outside production.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"clavionx/backend/internal/devotp"
)

const devOTPNote = "DEV MODE ONLY"

// Handler serves GET /dev/otp?destination=....
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler that reads codes from store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// ServeHTTP returns the last code sent to the destination, or 404 if missing or expired.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	dest := strings.TrimSpace(r.URL.Query().Get("destination"))
	if dest == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "destination is required"})
		return
	}
	otp, ok := h.store.Get(r.Context(), dest)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "OTP not found or expired"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"otp": otp, "note": devOTPNote})
}
