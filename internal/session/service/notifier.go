package service

import (
	"context"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

// LoginNotice describes a CreateSession outcome. Session is nil when the login was denied.
type LoginNotice struct {
	UserID    string
	TenantID  string
	Session   *domain.Session
	Device    clientctx.DeviceInfo
	IPAddress string
	// Fallback is set for ephemeral sessions issued while the store was unavailable.
	Fallback bool
	Denied   bool
}

// RevocationNotice describes one or more sessions that were revoked together.
type RevocationNotice struct {
	UserID   string
	TenantID string
	Sessions []*domain.Session
	By       string
	Reason   string
	// Bulk is set for RevokeAllSessions.
	Bulk bool
}

// AnomalyNotice describes a refresh whose client context changed enough to raise an alert.
type AnomalyNotice struct {
	Session   *domain.Session
	CurrentIP string
	Geo       *clientctx.GeoLocation
	Result    engine.AnomalyResult
}

// Notifier receives best-effort lifecycle notifications. The Manager calls it asynchronously;
// errors and panics inside a Notifier never reach the Manager's caller.
type Notifier interface {
	LogLogin(ctx context.Context, n LoginNotice)
	LogRevocation(ctx context.Context, n RevocationNotice)
	AlertAnomaly(ctx context.Context, n AnomalyNotice)
}

type nopNotifier struct{}

func (nopNotifier) LogLogin(context.Context, LoginNotice)           {}
func (nopNotifier) LogRevocation(context.Context, RevocationNotice) {}
func (nopNotifier) AlertAnomaly(context.Context, AnomalyNotice)     {}
