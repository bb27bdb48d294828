package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
	tpdomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

// Defaults for Manager timeouts.
const (
	DefaultStoreTimeout = 3 * time.Second
	DefaultFallbackTTL  = 15 * time.Minute
	notifyTimeout       = 5 * time.Second
)

// PolicySource resolves the session policy of a tenant.
type PolicySource interface {
	SessionPolicy(ctx context.Context, tenantID string) (domain.Policy, error)
}

// alertSource is implemented by policy sources that also carry anomaly alert switches.
type alertSource interface {
	AnomalyAlerts(ctx context.Context, tenantID string) (tpdomain.AnomalyAlerts, error)
}

// StaticPolicy applies one policy to every tenant.
type StaticPolicy domain.Policy

func (p StaticPolicy) SessionPolicy(context.Context, string) (domain.Policy, error) {
	return domain.Policy(p).Normalize(), nil
}

// RevocationCache is a negative cache of revoked token digests.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// AnomalyEvaluator grades client context changes observed on refresh.
type AnomalyEvaluator interface {
	EvaluateRefresh(ctx context.Context, in engine.AnomalyInput) (engine.AnomalyResult, error)
}

// TokenSource issues new session tokens.
type TokenSource interface {
	NewToken() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPolicySource sets the per-tenant policy source. Default: StaticPolicy(domain.DefaultPolicy()).
func WithPolicySource(p PolicySource) Option {
	return func(m *Manager) {
		if p != nil {
			m.policies = p
		}
	}
}

// WithNotifier sets the audit/alert notifier. Default: no-op.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the operator logger. Default: zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRevocationCache enables the revocation negative cache.
func WithRevocationCache(c RevocationCache) Option {
	return func(m *Manager) { m.revocations = c }
}

// WithAnomalyEvaluator enables IP continuity checks on refresh.
func WithAnomalyEvaluator(e AnomalyEvaluator) Option {
	return func(m *Manager) { m.anomaly = e }
}

// WithGeoLocator sets the locator used for session geo metadata.
func WithGeoLocator(g *clientctx.GeoLocator) Option {
	return func(m *Manager) { m.geo = g }
}

// WithTokenSource overrides the token generator.
func WithTokenSource(t TokenSource) Option {
	return func(m *Manager) {
		if t != nil {
			m.tokens = t
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) {
		if f != nil {
			m.newID = f
		}
	}
}

// WithStoreTimeout bounds every store call. Non-positive values keep the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.storeTimeout = d
		}
	}
}

// WithFallbackTTL caps the lifetime of ephemeral sessions. Non-positive values keep the default.
func WithFallbackTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.fallbackTTL = d
		}
	}
}
