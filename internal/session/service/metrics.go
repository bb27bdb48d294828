package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	created     metric.Int64Counter
	fallback    metric.Int64Counter
	denied      metric.Int64Counter
	validated   metric.Int64Counter
	revoked     metric.Int64Counter
	storeErrors metric.Int64Counter
}

// newMetrics registers the Manager's counters. Registration errors leave a no-op instrument in place.
func newMetrics(meter metric.Meter) *metrics {
	m := &metrics{}
	m.created, _ = meter.Int64Counter("sessions.created", metric.WithDescription("Sessions persisted by CreateSession"))
	m.fallback, _ = meter.Int64Counter("sessions.fallback", metric.WithDescription("Ephemeral sessions issued while the store was unavailable"))
	m.denied, _ = meter.Int64Counter("sessions.denied", metric.WithDescription("Logins denied by concurrent session policy"))
	m.validated, _ = meter.Int64Counter("sessions.validated", metric.WithDescription("ValidateSession outcomes"))
	m.revoked, _ = meter.Int64Counter("sessions.revoked", metric.WithDescription("Sessions revoked"))
	m.storeErrors, _ = meter.Int64Counter("sessions.store_errors", metric.WithDescription("Session store failures by operation"))
	return m
}

func add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
