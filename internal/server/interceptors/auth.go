package interceptors

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/platform/authctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

const bearerPrefix = "bearer "

// Sessions is the part of the session manager the auth interceptor needs.
type Sessions interface {
	ValidateSession(ctx context.Context, token string) (domain.ValidationOutcome, error)
	RefreshSession(ctx context.Context, token, ipAddress string) bool
}

var errUnauthenticated = status.Error(codes.Unauthenticated, "missing or invalid session")

// AuthUnary returns a unary server interceptor that validates the Bearer session token from gRPC
// metadata, refreshes its activity with the caller's IP, and sets user_id, tenant_id, and
// session_id in context. publicMethods do not require a token (e.g. the gRPC health check).
func AuthUnary(sessions Sessions, publicMethods map[string]bool, log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.L()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" || sessions == nil {
			return nil, errUnauthenticated
		}
		outcome, err := sessions.ValidateSession(ctx, token)
		if err != nil || !outcome.Valid {
			log.Debug("auth: session rejected",
				zap.String("method", info.FullMethod),
				zap.String("reason", outcome.String()))
			return nil, errUnauthenticated
		}
		// A refresh can lose a race with revocation; treat that like an invalid session.
		if !sessions.RefreshSession(ctx, token, ClientIP(ctx)) {
			return nil, errUnauthenticated
		}
		p := outcome.Principal
		return handler(authctx.WithIdentity(ctx, p.UserID, p.TenantID, p.SessionID), req)
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
