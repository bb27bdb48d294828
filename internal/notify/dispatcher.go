// Package notify adapts session lifecycle notices to the audit log and the event emitters.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/logger"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/service"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry/domain"
)

// EventSource is the Source recorded on emitted session events.
const EventSource = "session-lifecycle"

// Dispatcher implements service.Notifier. Each notice becomes one audit record per session and one
// event per emitter. It runs synchronously; the Manager already calls it off the request path.
type Dispatcher struct {
	audit   audit.AuditLogger
	emitter telemetry.EventEmitter
	now     func() time.Time
	log     *zap.Logger
}

// NewDispatcher returns a Dispatcher. auditLogger and emitter may be nil.
func NewDispatcher(auditLogger audit.AuditLogger, emitter telemetry.EventEmitter, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.L()
	}
	return &Dispatcher{audit: auditLogger, emitter: emitter, now: time.Now, log: log}
}

type loginMetadata struct {
	Device      string `json:"device"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	Remember    bool   `json:"remember_device,omitempty"`
	Country     string `json:"country,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type revocationMetadata struct {
	By     string `json:"revoked_by"`
	Reason string `json:"reason"`
	Bulk   bool   `json:"bulk,omitempty"`
}

type anomalyMetadata struct {
	Severity   string   `json:"severity"`
	Reasons    []string `json:"reasons,omitempty"`
	PreviousIP string   `json:"previous_ip,omitempty"`
	CurrentIP  string   `json:"current_ip"`
	Country    string   `json:"country,omitempty"`
}

func (d *Dispatcher) LogLogin(ctx context.Context, n service.LoginNotice) {
	md := loginMetadata{Device: n.Device.String(), Fingerprint: n.Device.Fingerprint(), Fallback: n.Fallback}
	action, eventType, severity := audit.ActionSessionCreated, domain.EventSessionCreated, domain.SeverityInfo
	switch {
	case n.Denied:
		action, eventType, severity = audit.ActionSessionConcurrentDeny, domain.EventSessionConcurrentDenied, domain.SeverityWarning
	case n.Fallback:
		action, eventType, severity = audit.ActionSessionCreatedFallback, domain.EventSessionFallback, domain.SeverityWarning
	}
	var sessionID string
	if s := n.Session; s != nil {
		sessionID = s.ID
		md.Remember = s.RememberDevice
		md.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
		if s.Geo != nil {
			md.Country = s.Geo.Country
		}
	}
	d.record(ctx, audit.Event{
		TenantID: n.TenantID, UserID: n.UserID, SessionID: sessionID,
		Action: action, Resource: audit.ResourceSession, IP: n.IPAddress,
	}, eventType, severity, md)
}

func (d *Dispatcher) LogRevocation(ctx context.Context, n service.RevocationNotice) {
	md := revocationMetadata{By: n.By, Reason: n.Reason, Bulk: n.Bulk}
	action := audit.ActionSessionRevoked
	if n.Bulk {
		action = audit.ActionSessionsRevokedAll
	}
	for _, s := range n.Sessions {
		if s == nil {
			continue
		}
		d.record(ctx, audit.Event{
			TenantID: s.TenantID, UserID: s.UserID, SessionID: s.ID,
			Action: action, Resource: audit.ResourceSession, IP: s.LastIPAddress,
		}, domain.EventSessionRevoked, domain.SeverityInfo, md)
	}
}

func (d *Dispatcher) AlertAnomaly(ctx context.Context, n service.AnomalyNotice) {
	s := n.Session
	if s == nil {
		return
	}
	md := anomalyMetadata{
		Severity:   string(n.Result.Severity),
		Reasons:    n.Result.Reasons,
		PreviousIP: s.LastIPAddress,
		CurrentIP:  n.CurrentIP,
	}
	if n.Geo != nil {
		md.Country = n.Geo.Country
	}
	severity := domain.SeverityWarning
	if n.Result.Severity == engine.SeverityHigh {
		severity = domain.SeverityHigh
	}
	d.record(ctx, audit.Event{
		TenantID: s.TenantID, UserID: s.UserID, SessionID: s.ID,
		Action: audit.ActionSessionAnomaly, Resource: audit.ResourceSession, IP: n.CurrentIP,
	}, domain.EventSessionAnomaly, severity, md)
}

func (d *Dispatcher) record(ctx context.Context, e audit.Event, eventType, severity string, metadata any) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		d.log.Warn("notify: metadata encoding failed", zap.String("event_type", eventType), zap.Error(err))
	}
	if d.audit != nil {
		e.Metadata = string(raw)
		d.audit.LogEvent(ctx, e)
	}
	if d.emitter == nil {
		return
	}
	event := &domain.Event{
		TenantID:  e.TenantID,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		EventType: eventType,
		Source:    EventSource,
		Severity:  severity,
		Metadata:  raw,
		CreatedAt: d.now().UTC(),
	}
	if err := d.emitter.Emit(ctx, event); err != nil {
		fields := append(logger.TraceFields(ctx),
			zap.String("event_type", eventType),
			zap.String("tenant_id", e.TenantID),
			zap.Error(err))
		d.log.Warn("notify: emit failed", fields...)
	}
}

// Noop is a Notifier that drops every notice.
type Noop struct{}

func (Noop) LogLogin(context.Context, service.LoginNotice)           {}
func (Noop) LogRevocation(context.Context, service.RevocationNotice) {}
func (Noop) AlertAnomaly(context.Context, service.AnomalyNotice)     {}

var (
	_ service.Notifier = (*Dispatcher)(nil)
	_ service.Notifier = Noop{}
)
