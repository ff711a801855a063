package interceptors

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clavionx/backend/internal/telemetry"
	"clavionx/backend/internal/telemetry/domain"
)

// TelemetryUnary returns a unary server interceptor that emits an admin.request event after each RPC.
// Best-effort: emission is async and never fails the RPC. If emitter is nil, the interceptor no-ops.
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		outcome := "success"
		if code != codes.OK {
			outcome = "failure"
		}
		userID, _ := GetUserID(ctx)
		sessionID, _ := GetSessionID(ctx)
		telemetry.EmitAsync(emitter, ctx, &domain.Event{
			Type:      domain.EventAdminRequest,
			UserID:    userID,
			SessionID: domain.SessionRef(sessionID),
			IP:        ClientIP(ctx),
			Outcome:   outcome,
			Attributes: map[string]string{
				"full_method": info.FullMethod,
				"status_code": code.String(),
				"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
			},
		})
		return resp, err
	}
}
