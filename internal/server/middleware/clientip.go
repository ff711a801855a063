// Package middleware holds the chi middleware for the browser-facing HTTP API.
package middleware

import (
	"net"
	"net/http"
	"strings"

	devicedomain "clavionx/backend/internal/device/domain"
	"clavionx/backend/internal/server/interceptors"
)

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if s := strings.TrimSpace(first); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RequestClient returns the client attributes used for session records and device fingerprints.
func RequestClient(r *http.Request) devicedomain.RequestContext {
	ip, ok := interceptors.ClientIPFromContext(r.Context())
	if !ok {
		ip = ClientIP(r)
	}
	return devicedomain.RequestContext{
		IPAddress:      ip,
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}
}

// WithClientIP stores the resolved client IP in the request context for audit logging.
func WithClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(interceptors.WithClientIP(r.Context(), ClientIP(r))))
	})
}
