// Package server assembles the gRPC host: interceptor chain, OTel stats handler, and the
// standard gRPC health service backed by readiness checks.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/server/interceptors"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry"
)

// HealthCheckMethod is the full method name of the standard gRPC health check.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds the collaborators of the gRPC host. Every field is optional.
type Deps struct {
	// Sessions validates Bearer tokens. If nil, every non-public RPC is rejected.
	Sessions interceptors.Sessions
	// Audit receives one entry per authenticated RPC.
	Audit audit.AuditLogger
	// Emitter receives one grpc.request event per RPC.
	Emitter telemetry.EventEmitter
	// PublicMethods extends the set of methods callable without a session token.
	PublicMethods []string
	Log           *zap.Logger
}

// NewGRPCServer returns a gRPC server with the auth, audit, and telemetry interceptors chained in
// that order, and the health service registered. The returned health server starts NOT_SERVING;
// use Readiness to drive it.
func NewGRPCServer(deps Deps) (*grpc.Server, *health.Server) {
	public := map[string]bool{HealthCheckMethod: true}
	for _, m := range deps.PublicMethods {
		public[m] = true
	}
	skip := map[string]bool{HealthCheckMethod: true}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(deps.Sessions, public, deps.Log),
			interceptors.AuditUnary(deps.Audit, skip),
			interceptors.TelemetryUnary(deps.Emitter, skip),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
