// Package server assembles the admin gRPC server and the browser-facing HTTP router.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	adminhandler "clavionx/backend/internal/admin/handler"
	"clavionx/backend/internal/audit"
	"clavionx/backend/internal/policy/engine"
	"clavionx/backend/internal/server/interceptors"
	"clavionx/backend/internal/telemetry"
)

// GRPCDeps holds the services and interceptor collaborators of the gRPC server.
type GRPCDeps struct {
	Admin adminhandler.AdminServiceServer
	// Health is the standard grpc.health.v1 server; its status is kept current by a scheduled job.
	Health *health.Server

	Tokens   interceptors.AccessValidator
	Sessions interceptors.SessionChecker
	Authz    interceptors.Authorizer
	// Audit and Events may be nil.
	Audit  audit.AuditLogger
	Events telemetry.EventEmitter
}

// publicMethods need no access token.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// AdminPermissions maps each admin RPC to the permission its caller's role must hold.
func AdminPermissions() map[string]string {
	return map[string]string{
		adminhandler.FullMethodUnlockAccount:         engine.PermUserManageAll,
		adminhandler.FullMethodTerminateUserSessions: engine.PermUserManageAll,
		adminhandler.FullMethodRevokeUserDevices:     engine.PermUserManageAll,
		adminhandler.FullMethodListUserSessions:      engine.PermAuditView,
	}
}

// NewGRPCServer returns a server with OpenTelemetry instrumentation and the auth, telemetry and
// audit interceptors (in that order), with the services from deps registered. Calls rejected by
// auth are traced by otelgrpc but produce no security event.
func NewGRPCServer(deps GRPCDeps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(interceptors.AuthConfig{
				Tokens:        deps.Tokens,
				Sessions:      deps.Sessions,
				Authz:         deps.Authz,
				PublicMethods: publicMethods,
				Permissions:   AdminPermissions(),
			}),
			interceptors.TelemetryUnary(deps.Events, publicMethods),
			interceptors.AuditUnary(deps.Audit, publicMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the admin service and, when set, the health service.
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	if deps.Admin != nil {
		adminhandler.RegisterAdminServiceServer(s, deps.Admin)
	}
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
