package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/platform/authctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry/domain"
)

const telemetrySource = "grpc_interceptor"

// grpcRequestMetadata is the JSON shape stored in Event.Metadata for grpc.request events.
type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip,omitempty"`
}

// TelemetryUnary returns a unary server interceptor that emits an event after each RPC via
// telemetry.EmitAsync. If emitter is nil the interceptor only forwards. skipMethods are not emitted.
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		tenantID, _ := authctx.TenantID(ctx)
		userID, _ := authctx.UserID(ctx)
		sessionID, _ := authctx.SessionID(ctx)
		event := domain.Event{
			TenantID:  tenantID,
			UserID:    userID,
			SessionID: sessionID,
			EventType: domain.EventGRPCRequest,
			Source:    telemetrySource,
			Severity:  domain.SeverityInfo,
			CreatedAt: time.Now().UTC(),
		}.WithMetadata(grpcRequestMetadata{
			FullMethod: info.FullMethod,
			StatusCode: status.Code(err).String(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   ClientIP(ctx),
		})
		telemetry.EmitAsync(emitter, ctx, &event)
		return resp, err
	}
}
