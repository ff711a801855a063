package interceptors

import (
	"context"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const bearerPrefix = "bearer "

// AccessValidator validates a session-bound access token.
type AccessValidator interface {
	ValidateAccess(token string) (sessionID, userID, role string, err error)
}

// SessionChecker reports whether the session behind a token is still active.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// Authorizer decides whether a role holds a permission.
type Authorizer interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

// AuthConfig configures AuthUnary.
type AuthConfig struct {
	Tokens   AccessValidator
	Sessions SessionChecker
	Authz    Authorizer
	// PublicMethods do not require a token (e.g. grpc.health.v1 Check).
	PublicMethods map[string]bool
	// Permissions maps a full method name to the permission its caller must hold. Methods that are
	// neither public nor listed here are denied.
	Permissions map[string]string
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token, requires its
// session to still be active, checks the method's permission for the caller's role and sets
// user_id, role and session_id in context.
func AuthUnary(cfg AuthConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if cfg.PublicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		sessionID, userID, role, err := cfg.Tokens.ValidateAccess(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		if cfg.Sessions != nil {
			active, err := cfg.Sessions.IsActive(ctx, sessionID)
			if err != nil {
				log.Printf("auth: session check for %s: %v", info.FullMethod, err)
				return nil, status.Error(codes.Unavailable, "please try again")
			}
			if !active {
				return nil, status.Error(codes.Unauthenticated, "session has ended")
			}
		}
		perm, ok := cfg.Permissions[info.FullMethod]
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		allowed, err := cfg.Authz.HasPermission(ctx, role, perm)
		if err != nil {
			log.Printf("auth: permission check for %s: %v", info.FullMethod, err)
			return nil, status.Error(codes.Internal, "authorization failed")
		}
		if !allowed {
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		return handler(WithIdentity(ctx, userID, role, sessionID), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
