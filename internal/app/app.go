// Package app wires configuration into the session manager and its collaborators. The server
// and the operator CLI share it so both see the same store, policies, and sinks.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit"
	auditrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/repository"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/cache"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/config"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/db"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/notify"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	policyrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/repository"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/server"
	sessiondomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
	sessionrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/repository"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/service"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry"
	telemetryotel "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry/otel"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry/producer"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy"
	tenantpolicyrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/repository"
)

// App holds the wired components. Optional parts (DB, Redis, Kafka) are nil when not configured.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Producer  *producer.KafkaProducer
	Telemetry *telemetryotel.Providers

	Sessions *service.Manager
	Policies *tenantpolicy.Source
	// Repositories behind the policy source, the evaluator, and the audit logger.
	TenantPolicies  tenantpolicyrepo.Repository
	AnomalyPolicies policyrepo.Repository
	AuditLogs       auditrepo.Repository

	Evaluator *engine.OPAEvaluator
	Audit     audit.AuditLogger
	Emitter   telemetry.EventEmitter
}

// New builds an App for cfg. serviceName labels telemetry. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, serviceName string, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.L()
	}
	a := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.Telemetry = providers

	var (
		sessions  sessionrepo.Repository
		tenants   tenantpolicyrepo.Repository
		anomalies policyrepo.Repository
		audits    auditrepo.Repository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.DB = conn
		sessions = sessionrepo.NewPostgresRepository(conn)
		tenants = tenantpolicyrepo.NewPostgresRepository(conn)
		anomalies = policyrepo.NewPostgresRepository(conn)
		audits = auditrepo.NewPostgresRepository(conn)
	case config.StoreDriverMemory:
		log.Warn("using in-memory session store; sessions do not survive a restart")
		sessions = sessionrepo.NewMemoryRepository()
		tenants = tenantpolicyrepo.NewMemoryRepository()
		anomalies = policyrepo.NewMemoryRepository()
		audits = auditrepo.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var revocations service.RevocationCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			// The cache only tightens validation; run without it.
			log.Warn("revocation cache disabled", zap.Error(err))
		} else {
			a.Redis = client
			revocations = cache.NewRevocationCache(client)
		}
	}

	emitters := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if p := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic); p != nil {
		a.Producer = p
		emitters = append(emitters, p)
	}
	a.Emitter = emitters
	a.TenantPolicies, a.AnomalyPolicies, a.AuditLogs = tenants, anomalies, audits
	a.Audit = audit.NewLogger(audits, nil, log)

	a.Policies = tenantpolicy.NewSource(tenants, BasePolicy(cfg))
	a.Evaluator = engine.NewOPAEvaluator(anomalies, log)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithPolicySource(a.Policies),
		service.WithNotifier(notify.NewDispatcher(a.Audit, a.Emitter, log)),
		service.WithAnomalyEvaluator(a.Evaluator),
		service.WithGeoLocator(clientctx.NewGeoLocator(nil, cfg.GeoTimeout())),
		service.WithStoreTimeout(cfg.StoreTimeoutDuration()),
		service.WithFallbackTTL(cfg.FallbackTTL()),
	}
	if revocations != nil {
		opts = append(opts, service.WithRevocationCache(revocations))
	}
	a.Sessions = service.NewManager(sessions, opts...)
	ok = true
	return a, nil
}

// BasePolicy returns the session policy for tenants without configuration.
func BasePolicy(cfg *config.Config) sessiondomain.Policy {
	return sessiondomain.Policy{
		MaxConcurrentSessionsPerDevice: cfg.SessionMaxPerDevice,
		MaxConcurrentSessions:          cfg.SessionMaxTotal,
		MaxIdleMinutes:                 cfg.SessionMaxIdleMinutes,
		MaxSessionHours:                cfg.SessionMaxHours,
	}.Normalize()
}

// ReadinessChecks returns the probes the gRPC health service should track.
func (a *App) ReadinessChecks() []server.Check {
	checks := []server.Check{{Name: "policy_engine", Fn: a.Evaluator.HealthCheck}}
	if a.DB != nil {
		checks = append(checks, server.Check{Name: "database", Fn: a.DB.PingContext})
	}
	return checks
}

// Close waits for pending notifications and releases every resource in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sessions != nil {
		if err := a.Sessions.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
