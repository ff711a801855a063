package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type auditCall struct {
	userID, action, resource, metadata string
}

// mockAuditLogger implements audit.AuditLogger for interceptor tests.
type mockAuditLogger struct {
	calls []auditCall
}

func (m *mockAuditLogger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	m.calls = append(m.calls, auditCall{userID, action, resource, metadata})
}

func runAudit(logger *mockAuditLogger, ctx context.Context, method string, handlerErr error) error {
	interceptor := AuditUnary(logger, map[string]bool{"/grpc.health.v1.Health/Check": true})
	_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, handlerErr
	})
	return err
}

func TestAuditUnary_RecordsAuthenticatedCall(t *testing.T) {
	logger := &mockAuditLogger{}
	ctx := WithIdentity(context.Background(), "admin-1", "ADMIN", "s1")
	if err := runAudit(logger, ctx, "/clavionx.admin.v1.AdminService/UnlockAccount", nil); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(logger.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(logger.calls))
	}
	got := logger.calls[0]
	want := auditCall{"admin-1", "unlock", "account", "status=OK"}
	if got != want {
		t.Errorf("audit = %+v, want %+v", got, want)
	}
}

func TestAuditUnary_RecordsFailureStatusAndPassesErrorThrough(t *testing.T) {
	logger := &mockAuditLogger{}
	ctx := WithIdentity(context.Background(), "admin-1", "ADMIN", "s1")
	handlerErr := status.Error(codes.NotFound, "no such user")
	err := runAudit(logger, ctx, "/clavionx.admin.v1.AdminService/RevokeUserDevices", handlerErr)
	if !errors.Is(err, handlerErr) {
		t.Errorf("err = %v, want handler error", err)
	}
	if len(logger.calls) != 1 || logger.calls[0].metadata != "status=NotFound" {
		t.Errorf("calls = %+v", logger.calls)
	}
}

func TestAuditUnary_SkipsUnauthenticatedAndSkipped(t *testing.T) {
	logger := &mockAuditLogger{}
	_ = runAudit(logger, context.Background(), "/clavionx.admin.v1.AdminService/UnlockAccount", nil)
	_ = runAudit(logger, WithIdentity(context.Background(), "u", "ADMIN", "s"), "/grpc.health.v1.Health/Check", nil)
	if len(logger.calls) != 0 {
		t.Errorf("calls = %+v, want none", logger.calls)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"stored by http middleware", WithClientIP(context.Background(), "198.51.100.7"), "198.51.100.7"},
		{"x-forwarded-for first entry", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.1, 10.0.0.1")), "203.0.113.1"},
		{"x-real-ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "203.0.113.2")), "203.0.113.2"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.5"), Port: 5555}}), "192.0.2.5"},
		{"unknown", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.ctx); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
