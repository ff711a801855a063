package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"clavionx/backend/internal/server/interceptors"
	sessiondomain "clavionx/backend/internal/session/domain"
	sessionservice "clavionx/backend/internal/session/service"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1", "X-Real-IP": "10.0.0.2"}, "10.0.0.3:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.3:1234", "198.51.100.2"},
		{"socket", nil, "198.51.100.3:5555", "198.51.100.3"},
		{"blank forwarded", map[string]string{"X-Forwarded-For": " "}, "198.51.100.4:1", "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestClient_UsesContextIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "ua")
	r.Header.Set("Accept-Language", "en")
	r = r.WithContext(interceptors.WithClientIP(r.Context(), "203.0.113.9"))
	rc := RequestClient(r)
	if rc.IPAddress != "203.0.113.9" || rc.UserAgent != "ua" || rc.AcceptLanguage != "en" {
		t.Errorf("RequestClient = %+v", rc)
	}
}

type fakeSessions struct {
	sessions map[string]*sessiondomain.Session
	err      error
	touched  []string
}

func (f *fakeSessions) Get(_ context.Context, id string) (*sessiondomain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, sessionservice.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Touch(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

func TestRequireSession(t *testing.T) {
	store := &fakeSessions{sessions: map[string]*sessiondomain.Session{
		"live-session-id": {ID: "live-session-id", UserID: "u-1", Active: true},
		"dead-session-id": {ID: "dead-session-id", UserID: "u-1", Active: false},
	}}
	var gotUser, gotSession string
	h := RequireSession("SID", store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = interceptors.GetUserID(r.Context())
		gotSession, _ = interceptors.GetSessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		cookie string
		want   int
	}{
		{"no cookie", "", http.StatusUnauthorized},
		{"unknown", "nope", http.StatusUnauthorized},
		{"terminated", "dead-session-id", http.StatusUnauthorized},
		{"active", "live-session-id", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "SID", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if gotUser != "u-1" || gotSession != "live-session-id" {
		t.Errorf("identity = %q/%q", gotUser, gotSession)
	}
	if len(store.touched) != 1 || store.touched[0] != "live-session-id" {
		t.Errorf("touched = %v", store.touched)
	}

	store.err = errors.New("db down")
	r := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	r.AddCookie(&http.Cookie{Name: "SID", Value: "live-session-id"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("store failure status = %d, want 503", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request should be limited")
	}
	if !l.Allow("b") {
		t.Error("other IPs have their own bucket")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("bucket should refill after a second")
	}

	now = now.Add(idleTTL + time.Minute)
	l.Allow("c")
	if _, ok := l.visitors["a"]; ok {
		t.Error("idle visitor should be dropped")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 2)
	for i := range codes {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "198.51.100.7:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestRateLimiter_IgnoresForwardedFromUntrustedPeer(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	allowed := 0
	for i := 0; i < 20; i++ {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "198.51.100.7:1000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("allowed = %d, want 1 with rotating X-Forwarded-For", allowed)
	}
}

func TestRateLimiter_TrustedProxy(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	if err := l.TrustProxies([]string{"10.0.0.0/8"}); err != nil {
		t.Fatalf("TrustProxies: %v", err)
	}
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"forwarded by proxy", "10.1.2.3:443", "203.0.113.5, 10.1.2.3", "203.0.113.5"},
		{"direct client", "198.51.100.9:5000", "203.0.113.5", "198.51.100.9"},
		{"proxy without header", "10.1.2.3:443", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := l.key(r); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
	if err := l.TrustProxies([]string{"nope"}); err == nil {
		t.Error("TrustProxies(malformed): expected error")
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
