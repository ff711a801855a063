package handler

import (
	"context"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	sessiondomain "clavionx/backend/internal/session/domain"
	telemetrydomain "clavionx/backend/internal/telemetry/domain"
	userdomain "clavionx/backend/internal/user/domain"
)

// Unlocker clears an account lockout. found is false for unknown accounts.
type Unlocker interface {
	AdminUnlock(ctx context.Context, account string) (found bool, err error)
}

// SessionAdmin is the part of the session registry used by the admin API.
type SessionAdmin interface {
	TerminateAll(ctx context.Context, userID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	ListAll(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// DeviceAdmin revokes remembered devices.
type DeviceAdmin interface {
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// UserLookup resolves a user by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Server implements AdminServiceServer. Authentication and permission checks run in the interceptors.
type Server struct {
	unlocker Unlocker
	sessions SessionAdmin
	devices  DeviceAdmin
	users    UserLookup
}

// NewServer returns a new Admin gRPC server.
func NewServer(unlocker Unlocker, sessions SessionAdmin, devices DeviceAdmin, users UserLookup) *Server {
	return &Server{unlocker: unlocker, sessions: sessions, devices: devices, users: users}
}

// UnlockAccount clears the lock for {"login": "<username or e-mail>"}.
func (s *Server) UnlockAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	login := stringField(req, "login")
	if login == "" {
		return nil, status.Error(codes.InvalidArgument, "login is required")
	}
	found, err := s.unlocker.AdminUnlock(ctx, login)
	if err != nil {
		return nil, internalError("UnlockAccount", err)
	}
	if !found {
		return nil, status.Error(codes.NotFound, "account not found")
	}
	return structpb.NewStruct(map[string]interface{}{"unlocked": true})
}

// TerminateUserSessions ends every active session of {"user_id"}.
func (s *Server) TerminateUserSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	n, err := s.sessions.TerminateAll(ctx, userID)
	if err != nil {
		return nil, internalError("TerminateUserSessions", err)
	}
	return structpb.NewStruct(map[string]interface{}{"terminated": n})
}

// RevokeUserDevices revokes every remembered device of {"user_id"}.
func (s *Server) RevokeUserDevices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	n, err := s.devices.RevokeAll(ctx, userID)
	if err != nil {
		return nil, internalError("RevokeUserDevices", err)
	}
	return structpb.NewStruct(map[string]interface{}{"revoked": n})
}

// ListUserSessions lists the sessions of {"user_id", "active_only"}. Session IDs are returned as short
// references only; they are bearer credentials.
func (s *Server) ListUserSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.requireUser(ctx, req)
	if err != nil {
		return nil, err
	}
	list := s.sessions.ListAll
	if v, ok := req.GetFields()["active_only"]; ok && v.GetBoolValue() {
		list = s.sessions.ListActive
	}
	sessions, err := list(ctx, userID)
	if err != nil {
		return nil, internalError("ListUserSessions", err)
	}
	items := make([]interface{}, 0, len(sessions))
	for _, sess := range sessions {
		item := map[string]interface{}{
			"ref":           telemetrydomain.SessionRef(sess.ID),
			"ip_address":    sess.IPAddress,
			"device_label":  sess.DeviceLabel,
			"login_time":    sess.LoginTime.UTC().Format(time.RFC3339),
			"last_activity": sess.LastActivity.UTC().Format(time.RFC3339),
			"active":        sess.Active,
		}
		if sess.LogoutTime != nil {
			item["logout_time"] = sess.LogoutTime.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return structpb.NewStruct(map[string]interface{}{"sessions": items})
}

func (s *Server) requireUser(ctx context.Context, req *structpb.Struct) (string, error) {
	userID := stringField(req, "user_id")
	if userID == "" {
		return "", status.Error(codes.InvalidArgument, "user_id is required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", internalError("user lookup", err)
	}
	if u == nil {
		return "", status.Error(codes.NotFound, "user not found")
	}
	return u.ID, nil
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func internalError(op string, err error) error {
	log.Printf("admin: %s: %v", op, err)
	return status.Error(codes.Internal, "internal error")
}
