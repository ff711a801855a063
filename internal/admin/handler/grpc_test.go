package handler

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	sessiondomain "clavionx/backend/internal/session/domain"
	userdomain "clavionx/backend/internal/user/domain"
)

type mockUnlocker struct {
	known map[string]bool
	err   error
	got   string
}

func (m *mockUnlocker) AdminUnlock(ctx context.Context, account string) (bool, error) {
	m.got = account
	return m.known[account], m.err
}

type mockSessions struct {
	sessions   []*sessiondomain.Session
	terminated string
	err        error
}

func (m *mockSessions) TerminateAll(ctx context.Context, userID string) (int, error) {
	m.terminated = userID
	return 2, m.err
}

func (m *mockSessions) ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	var out []*sessiondomain.Session
	for _, s := range m.sessions {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, m.err
}

func (m *mockSessions) ListAll(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return m.sessions, m.err
}

type mockDevices struct{ revoked string }

func (m *mockDevices) RevokeAll(ctx context.Context, userID string) (int, error) {
	m.revoked = userID
	return 1, nil
}

type mockUsers struct{}

func (mockUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	if id == "user-1" {
		return &userdomain.User{ID: "user-1"}, nil
	}
	return nil, nil
}

func newTestClient(t *testing.T, srv AdminServiceServer, opts ...grpc.ServerOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(opts...)
	RegisterAdminServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestUnlockAccount(t *testing.T) {
	unlocker := &mockUnlocker{known: map[string]bool{"alice": true}}
	client := newTestClient(t, NewServer(unlocker, &mockSessions{}, &mockDevices{}, mockUsers{}))
	ctx := context.Background()

	resp, err := client.Call(ctx, FullMethodUnlockAccount, mustStruct(t, map[string]interface{}{"login": " alice "}))
	if err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	if !resp.GetFields()["unlocked"].GetBoolValue() {
		t.Errorf("unlocked = false")
	}
	if unlocker.got != "alice" {
		t.Errorf("unlocked account = %q, want alice", unlocker.got)
	}

	_, err = client.Call(ctx, FullMethodUnlockAccount, mustStruct(t, map[string]interface{}{"login": "bob"}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown account: code = %v, want NotFound", status.Code(err))
	}
	_, err = client.Call(ctx, FullMethodUnlockAccount, mustStruct(t, map[string]interface{}{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing login: code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestTerminateAndRevoke(t *testing.T) {
	sessions := &mockSessions{}
	devices := &mockDevices{}
	client := newTestClient(t, NewServer(&mockUnlocker{}, sessions, devices, mockUsers{}))
	ctx := context.Background()
	req := mustStruct(t, map[string]interface{}{"user_id": "user-1"})

	resp, err := client.Call(ctx, FullMethodTerminateUserSessions, req)
	if err != nil {
		t.Fatalf("TerminateUserSessions: %v", err)
	}
	if resp.GetFields()["terminated"].GetNumberValue() != 2 || sessions.terminated != "user-1" {
		t.Errorf("terminate resp = %v, user = %q", resp, sessions.terminated)
	}

	resp, err = client.Call(ctx, FullMethodRevokeUserDevices, req)
	if err != nil {
		t.Fatalf("RevokeUserDevices: %v", err)
	}
	if resp.GetFields()["revoked"].GetNumberValue() != 1 || devices.revoked != "user-1" {
		t.Errorf("revoke resp = %v, user = %q", resp, devices.revoked)
	}

	_, err = client.Call(ctx, FullMethodRevokeUserDevices, mustStruct(t, map[string]interface{}{"user_id": "ghost"}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown user: code = %v, want NotFound", status.Code(err))
	}
}

func TestListUserSessions(t *testing.T) {
	login := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	ended := login.Add(time.Hour)
	sessions := &mockSessions{sessions: []*sessiondomain.Session{
		{ID: "aaaaaaaaaaaaaaaaaaaa", DeviceLabel: "Chrome on Windows", LoginTime: login, LastActivity: login, Active: true},
		{ID: "bbbbbbbbbbbbbbbbbbbb", LoginTime: login, LastActivity: login, LogoutTime: &ended},
	}}
	client := newTestClient(t, NewServer(&mockUnlocker{}, sessions, &mockDevices{}, mockUsers{}))

	resp, err := client.Call(context.Background(), FullMethodListUserSessions, mustStruct(t, map[string]interface{}{"user_id": "user-1"}))
	if err != nil {
		t.Fatalf("ListUserSessions: %v", err)
	}
	list := resp.GetFields()["sessions"].GetListValue().GetValues()
	if len(list) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list))
	}
	first := list[0].GetStructValue().GetFields()
	if first["ref"].GetStringValue() != "aaaaaaaa" {
		t.Errorf("ref = %q, want truncated id", first["ref"].GetStringValue())
	}
	if first["device_label"].GetStringValue() != "Chrome on Windows" || !first["active"].GetBoolValue() {
		t.Errorf("first session = %v", first)
	}
	if list[1].GetStructValue().GetFields()["logout_time"].GetStringValue() != "2025-02-01T10:00:00Z" {
		t.Errorf("logout_time = %v", list[1])
	}

	resp, err = client.Call(context.Background(), FullMethodListUserSessions, mustStruct(t, map[string]interface{}{"user_id": "user-1", "active_only": true}))
	if err != nil {
		t.Fatalf("ListUserSessions active_only: %v", err)
	}
	if n := len(resp.GetFields()["sessions"].GetListValue().GetValues()); n != 1 {
		t.Errorf("active sessions = %d, want 1", n)
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	client := newTestClient(t, NewServer(&mockUnlocker{err: errors.New("pq: connection reset")}, &mockSessions{}, &mockDevices{}, mockUsers{}))
	_, err := client.Call(context.Background(), FullMethodUnlockAccount, mustStruct(t, map[string]interface{}{"login": "alice"}))
	st := status.Convert(err)
	if st.Code() != codes.Internal || st.Message() != "internal error" {
		t.Errorf("status = %v %q, want Internal \"internal error\"", st.Code(), st.Message())
	}
}

func TestInterceptorSeesFullMethod(t *testing.T) {
	var seen string
	interceptor := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		seen = info.FullMethod
		return handler(ctx, req)
	}
	client := newTestClient(t, NewServer(&mockUnlocker{}, &mockSessions{}, &mockDevices{}, mockUsers{}), grpc.UnaryInterceptor(interceptor))
	_, _ = client.Call(context.Background(), FullMethodTerminateUserSessions, mustStruct(t, map[string]interface{}{"user_id": "user-1"}))
	if seen != FullMethodTerminateUserSessions {
		t.Errorf("interceptor FullMethod = %q", seen)
	}
}
