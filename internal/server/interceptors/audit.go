package interceptors

import (
	"context"

	"google.golang.org/grpc"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/platform/authctx"
)

// AuditUnary returns a unary server interceptor that records an audit entry after each RPC.
// skipMethods are never audited (e.g. the health check). Only authenticated calls, those with a
// tenant in context, are written. Logging is best-effort and never fails the RPC.
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		tenantID, _ := authctx.TenantID(ctx)
		if tenantID == "" {
			return resp, err
		}
		userID, _ := authctx.UserID(ctx)
		sessionID, _ := authctx.SessionID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, audit.Event{
			TenantID:  tenantID,
			UserID:    userID,
			SessionID: sessionID,
			Action:    ar.Action,
			Resource:  ar.Resource,
			IP:        ClientIP(ctx),
		})
		return resp, err
	}
}
