package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/domain"
	auditrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/repository"
)

// SentinelTenantID is the tenant_id used for audit events that have no tenant.
const SentinelTenantID = "_system"

// Session lifecycle actions.
const (
	ActionSessionCreated         = "session_created"
	ActionSessionCreatedFallback = "session_created_fallback"
	ActionSessionConcurrentDeny  = "session_concurrent_denied"
	ActionSessionRevoked         = "session_revoked"
	ActionSessionsRevokedAll     = "sessions_revoked_all"
	ActionSessionAnomaly         = "session_anomaly"

	ResourceSession = "session"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// Event is one audit record as supplied by callers. ID and timestamp are assigned by the logger.
type Event struct {
	TenantID  string
	UserID    string
	SessionID string
	Action    string
	Resource  string
	// IP overrides the extractor when set.
	IP       string
	Metadata string
}

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged
// and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo. ipExtractor may be nil; then IP is
// recorded as "unknown" unless the event carries one. A nil log uses zap's global logger.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.L()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	ip := e.IP
	if ip == "" && l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	tenantID := e.TenantID
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		Action:    e.Action,
		Resource:  e.Resource,
		IP:        ip,
		Metadata:  e.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", e.Action),
			zap.String("resource", e.Resource),
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}
