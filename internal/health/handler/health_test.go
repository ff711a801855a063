package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		pinger  Pinger
		policy  PolicyChecker
		wantErr bool
	}{
		{"no dependencies", nil, nil, false},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, false},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, true},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("rego")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewChecker(tt.pinger, tt.policy).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServeHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(&mockPinger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"SERVING"`) {
		t.Errorf("healthy: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewChecker(&mockPinger{pingErr: errors.New("dial tcp: secret-host:5432")}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "NOT_SERVING") {
		t.Errorf("unhealthy: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret-host") {
		t.Error("dependency error leaked to the response")
	}
}

func TestSyncGRPC(t *testing.T) {
	hs := health.NewServer()
	pinger := &mockPinger{pingErr: errors.New("down")}
	c := NewChecker(pinger, nil)

	if err := c.SyncGRPC(context.Background(), hs); err == nil {
		t.Error("SyncGRPC should return the check error")
	}
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}

	pinger.pingErr = nil
	if err := c.SyncGRPC(context.Background(), hs); err != nil {
		t.Fatalf("SyncGRPC: %v", err)
	}
	resp, _ = hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
