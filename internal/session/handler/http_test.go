package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/server/interceptors"
	"clavionx/backend/internal/session/repository"
	"clavionx/backend/internal/session/service"
)

func setup(t *testing.T) (http.Handler, *service.Registry, []string) {
	t.Helper()
	ctx := context.Background()
	reg := service.NewRegistry(repository.NewMemoryRepository(), clock.NewFake(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)), 5)
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := reg.Create(ctx, "u-1", "203.0.113.1", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, s.ID)
	}
	other, err := reg.Create(ctx, "u-2", "203.0.113.2", "curl/8.0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ids = append(ids, other.ID)

	h := NewHandler(reg)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(interceptors.WithIdentity(req.Context(), "u-1", "", ids[0])))
		})
	})
	r.Get("/sessions", h.List)
	r.Delete("/sessions/{ref}", h.Terminate)
	r.Post("/sessions/terminate-others", h.TerminateOthers)
	return r, reg, ids
}

func TestList(t *testing.T) {
	h, _, ids := setup(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	var body struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(body.Sessions))
	}
	var current int
	for _, s := range body.Sessions {
		if len(s.Ref) != refLen {
			t.Errorf("ref %q should be a %d-char prefix", s.Ref, refLen)
		}
		if s.Current {
			current++
			if s.Ref != ids[0][:refLen] {
				t.Errorf("current ref = %q", s.Ref)
			}
		}
	}
	if current != 1 {
		t.Errorf("current sessions = %d, want 1", current)
	}
}

func TestTerminate(t *testing.T) {
	h, reg, ids := setup(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+ids[1][:refLen], nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if active, _ := reg.IsActive(ctx, ids[1]); active {
		t.Error("session should be terminated")
	}

	// Another user's session is invisible.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+ids[3][:refLen], nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign session status = %d, want 404", rec.Code)
	}
	if active, _ := reg.IsActive(ctx, ids[3]); !active {
		t.Error("foreign session must stay active")
	}
}

func TestTerminateOthers(t *testing.T) {
	h, reg, ids := setup(t)
	ctx := context.Background()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/terminate-others", nil))

	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["terminated"] != 2 {
		t.Errorf("terminated = %d, want 2", body["terminated"])
	}
	if active, _ := reg.IsActive(ctx, ids[0]); !active {
		t.Error("current session must stay active")
	}
}
