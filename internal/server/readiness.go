package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Check is a named readiness probe (database ping, policy engine).
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Readiness sets the health server's overall status from a set of checks.
type Readiness struct {
	hs     *health.Server
	checks []Check
	log    *zap.Logger
}

// NewReadiness returns a Readiness for hs. A nil log uses zap's global logger.
func NewReadiness(hs *health.Server, log *zap.Logger, checks ...Check) *Readiness {
	if log == nil {
		log = zap.L()
	}
	return &Readiness{hs: hs, checks: checks, log: log}
}

// Evaluate runs every check once and reports SERVING only when all pass.
func (r *Readiness) Evaluate(ctx context.Context) bool {
	ok := true
	for _, c := range r.checks {
		if c.Fn == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Fn(cctx)
		cancel()
		if err != nil {
			r.log.Warn("readiness check failed", zap.String("check", c.Name), zap.Error(err))
			ok = false
		}
	}
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.hs.SetServingStatus("", st)
	return ok
}

// Run evaluates immediately and then every interval until ctx is done.
func (r *Readiness) Run(ctx context.Context, interval time.Duration) {
	r.Evaluate(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Evaluate(ctx)
		}
	}
}

// Shutdown marks the service NOT_SERVING and rejects further status changes.
func (r *Readiness) Shutdown() {
	r.hs.Shutdown()
}
