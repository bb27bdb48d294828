// Package service implements the session lifecycle manager: creation with device dedup and a
// fail-safe fallback, fail-closed validation and refresh, and idempotent revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/logger"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/platform/authctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/security"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/repository"
)

const instrumentationName = "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/service"

// MaxReasonBytes bounds the revocation reason stored for audit display.
const MaxReasonBytes = 256

// DefaultRevocationReason is recorded when the caller gives no reason.
const DefaultRevocationReason = "unspecified"

// CreateOptions carries the client context of a login. DeviceInfo is required; nil means absent.
type CreateOptions struct {
	DeviceInfo     *clientctx.DeviceInfo
	IPAddress      string
	UserAgent      string
	RememberDevice bool
}

// CreateResult is a new session and the token handed to the client. The token is not stored.
type CreateResult struct {
	Session *domain.Session
	Token   string
	// Fallback is true when the session is ephemeral because the store was unavailable.
	Fallback bool
}

// Manager owns the session state machine. It holds no per-request state and is safe for
// concurrent use; cross-request coordination happens in the repository.
type Manager struct {
	repo        repository.Repository
	policies    PolicySource
	notifier    Notifier
	revocations RevocationCache
	anomaly     AnomalyEvaluator
	geo         *clientctx.GeoLocator
	tokens      TokenSource
	now         func() time.Time
	newID       func() string
	log         *zap.Logger

	storeTimeout time.Duration
	fallbackTTL  time.Duration

	tracer  trace.Tracer
	metrics *metrics
	pending sync.WaitGroup
}

// NewManager returns a Manager over repo.
func NewManager(repo repository.Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:         repo,
		policies:     StaticPolicy(domain.DefaultPolicy()),
		notifier:     nopNotifier{},
		tokens:       security.TokenGenerator{},
		now:          time.Now,
		newID:        uuid.NewString,
		log:          zap.L(),
		storeTimeout: DefaultStoreTimeout,
		fallbackTTL:  DefaultFallbackTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tracer = otel.Tracer(instrumentationName)
	m.metrics = newMetrics(otel.Meter(instrumentationName))
	return m
}

// CreateSession issues a session for userID in tenantID. It returns ErrInvalidIdentity or
// ErrMissingDeviceInfo for bad input and ErrConcurrentSessionDenied when the tenant's
// concurrency policy rejects the login. Store failures never surface: the caller gets an
// ephemeral session with CreateResult.Fallback set instead.
func (m *Manager) CreateSession(ctx context.Context, userID, tenantID string, opts CreateOptions) (*CreateResult, error) {
	ctx, span := m.tracer.Start(ctx, "session.CreateSession", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer span.End()

	userID, tenantID = strings.TrimSpace(userID), strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return nil, domain.ErrInvalidIdentity
	}
	if opts.DeviceInfo == nil {
		return nil, domain.ErrMissingDeviceInfo
	}
	device := *opts.DeviceInfo

	token, err := m.tokens.NewToken()
	if err != nil {
		span.SetStatus(codes.Error, "token generation failed")
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	policy := m.policyFor(ctx, tenantID)
	now := m.now().UTC()
	ip := normalizeIP(opts.IPAddress)

	s := &domain.Session{
		ID:                m.newID(),
		UserID:            userID,
		TenantID:          tenantID,
		TokenHash:         security.HashToken(token),
		DeviceInfo:        device,
		DeviceFingerprint: device.Fingerprint(),
		UserAgent:         opts.UserAgent,
		IPAddress:         ip,
		LastIPAddress:     ip,
		Geo:               m.geo.Lookup(ctx, ip),
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(policy.MaxSession()),
		IsActive:          true,
		RememberDevice:    opts.RememberDevice,
	}

	limits := repository.InsertLimits{Total: policy.MaxConcurrentSessions, Now: now}
	if policy.DedupEnabled() {
		limits.PerDevice = policy.MaxConcurrentSessionsPerDevice
	}
	if idle := policy.MaxIdle(); idle > 0 {
		limits.IdleCutoff = now.Add(-idle)
	}

	storeCtx, cancel := m.storeCtx(ctx)
	err = m.repo.Insert(storeCtx, s, limits)
	cancel()

	fields := append(logger.TraceFields(ctx),
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("session_id", s.ID),
		zap.String("token_prefix", security.RedactToken(token)),
	)
	commitUncertain := errors.Is(err, repository.ErrCommitUncertain)
	if commitUncertain && m.confirmInsert(ctx, s) {
		m.log.Warn("createSession commit failed but the session was persisted", append(fields, zap.Error(err))...)
		err = nil
	}
	switch kind := repository.KindOf(err); kind {
	case repository.KindNone:
		snapshot := *s
		add(ctx, m.metrics.created, 1)
		m.log.Info("session created", fields...)
		m.dispatch(ctx, "LogLogin", func(nctx context.Context) {
			m.notifier.LogLogin(nctx, LoginNotice{UserID: userID, TenantID: tenantID, Session: &snapshot, Device: device, IPAddress: ip})
		})
		return &CreateResult{Session: s, Token: token}, nil

	case repository.KindConflict:
		add(ctx, m.metrics.denied, 1)
		span.SetAttributes(attribute.Bool("session.denied", true))
		m.log.Info("createSession denied by concurrent session policy", append(fields, zap.Error(err))...)
		m.dispatch(ctx, "LogLogin", func(nctx context.Context) {
			m.notifier.LogLogin(nctx, LoginNotice{UserID: userID, TenantID: tenantID, Device: device, IPAddress: ip, Denied: true})
		})
		return nil, deniedError(err)

	default:
		ttl := policy.MaxSession()
		if m.fallbackTTL < ttl {
			ttl = m.fallbackTTL
		}
		s.ExpiresAt = now.Add(ttl)
		s.Ephemeral = true
		add(ctx, m.metrics.fallback, 1)
		add(ctx, m.metrics.storeErrors, 1, attribute.String("op", "create"))
		span.SetAttributes(attribute.Bool("session.fallback", true))
		// With commitUncertain the row may still exist with the full lifetime; validation then
		// honours the stored expiry, not the ephemeral one returned here.
		m.log.Warn("createSession fallback", append(fields,
			zap.Stringer("error_kind", kind), zap.Bool("commit_uncertain", commitUncertain), zap.Error(err))...)
		snapshot := *s
		m.dispatch(ctx, "LogLogin", func(nctx context.Context) {
			m.notifier.LogLogin(nctx, LoginNotice{UserID: userID, TenantID: tenantID, Session: &snapshot, Device: device, IPAddress: ip, Fallback: true})
		})
		return &CreateResult{Session: s, Token: token, Fallback: true}, nil
	}
}

// ValidateSession resolves token to a ValidationOutcome. The only error is ErrInvalidToken for
// strings that cannot be a session token. Store failures yield Invalid{not_found}, never Valid.
func (m *Manager) ValidateSession(ctx context.Context, token string) (domain.ValidationOutcome, error) {
	ctx, span := m.tracer.Start(ctx, "session.ValidateSession")
	defer span.End()

	if err := security.CheckTokenShape(token); err != nil {
		return domain.InvalidOutcome(domain.ReasonNotFound), domain.ErrInvalidToken
	}
	outcome := m.validate(ctx, token)
	span.SetAttributes(attribute.String("session.outcome", outcome.String()))
	add(ctx, m.metrics.validated, 1, attribute.String("outcome", outcome.String()))
	return outcome, nil
}

func (m *Manager) validate(ctx context.Context, token string) domain.ValidationOutcome {
	hash := security.HashToken(token)
	if m.cachedRevoked(ctx, hash) {
		return domain.InvalidOutcome(domain.ReasonRevoked)
	}
	s, ok := m.lookup(ctx, "validate", token, hash)
	if !ok {
		return domain.InvalidOutcome(domain.ReasonNotFound)
	}
	switch s.StateAt(m.now().UTC(), m.policyFor(ctx, s.TenantID)) {
	case domain.StateActive:
		return domain.ValidOutcome(s)
	case domain.StateExpired:
		return domain.InvalidOutcome(domain.ReasonExpired)
	case domain.StateRevoked:
		return domain.InvalidOutcome(domain.ReasonRevoked)
	default:
		return domain.InvalidOutcome(domain.ReasonNotFound)
	}
}

// RefreshSession records activity on the active session for token and returns true. It returns
// false for malformed, unknown, expired or revoked tokens and on any store failure. expiresAt is
// never moved. When ipAddress differs from the session's last address, the anomaly policy runs
// in the background.
func (m *Manager) RefreshSession(ctx context.Context, token, ipAddress string) bool {
	ctx, span := m.tracer.Start(ctx, "session.RefreshSession")
	defer span.End()

	if security.CheckTokenShape(token) != nil {
		return false
	}
	hash := security.HashToken(token)
	if m.cachedRevoked(ctx, hash) {
		return false
	}
	s, ok := m.lookup(ctx, "refresh", token, hash)
	if !ok {
		return false
	}
	now := m.now().UTC()
	if state := s.StateAt(now, m.policyFor(ctx, s.TenantID)); state != domain.StateActive {
		span.SetAttributes(attribute.String("session.state", string(state)))
		return false
	}

	ip := normalizeIP(ipAddress)
	storeCtx, cancel := m.storeCtx(ctx)
	err := m.repo.Touch(storeCtx, s.ID, now, ip)
	cancel()
	if err != nil {
		if repository.KindOf(err) == repository.KindNotFound {
			m.log.Debug("refreshSession lost race with revoke or expiry", zap.String("session_id", s.ID))
		} else {
			add(ctx, m.metrics.storeErrors, 1, attribute.String("op", "refresh"))
			m.log.Error("refreshSession store failure",
				zap.String("tenant_id", s.TenantID), zap.String("session_id", s.ID), zap.Error(err))
		}
		return false
	}

	if ip != "" && s.LastIPAddress != "" && ip != s.LastIPAddress && m.anomaly != nil {
		m.checkContinuity(ctx, s, ip)
	}
	return true
}

func (m *Manager) checkContinuity(ctx context.Context, s *domain.Session, ip string) {
	m.dispatch(ctx, "AlertAnomaly", func(nctx context.Context) {
		in := engine.AnomalyInput{
			TenantID:   s.TenantID,
			UserID:     s.UserID,
			SessionID:  s.ID,
			PreviousIP: s.LastIPAddress,
			CurrentIP:  ip,
		}
		if src, ok := m.policies.(alertSource); ok {
			if alerts, err := src.AnomalyAlerts(nctx, s.TenantID); err == nil {
				in.AlertOnIPChange = alerts.AlertOnIPChange
				in.AlertOnCountryChange = alerts.AlertOnCountryChange
			}
		}
		if s.Geo != nil && !s.Geo.Local {
			in.PreviousCountry = s.Geo.Country
		}
		geo := m.geo.Lookup(nctx, ip)
		if geo != nil && !geo.Local {
			in.CurrentCountry = geo.Country
		}
		res, err := m.anomaly.EvaluateRefresh(nctx, in)
		if err != nil {
			m.log.Warn("refreshSession anomaly evaluation failed", zap.String("session_id", s.ID), zap.Error(err))
			return
		}
		if !res.Alerting() {
			return
		}
		m.log.Warn("session anomaly detected",
			zap.String("tenant_id", s.TenantID),
			zap.String("session_id", s.ID),
			zap.String("severity", string(res.Severity)),
			zap.Strings("reasons", res.Reasons))
		m.notifier.AlertAnomaly(nctx, AnomalyNotice{Session: s, CurrentIP: ip, Geo: geo, Result: res})
	})
}

// RevokeSession revokes sessionID and reports whether this call performed the transition.
// Revoking an unknown or already revoked session returns false; so does a store failure.
// The actor is taken from ctx (authctx.Actor).
func (m *Manager) RevokeSession(ctx context.Context, sessionID, reason string) bool {
	ctx, span := m.tracer.Start(ctx, "session.RevokeSession")
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false
	}
	rev := domain.Revocation{At: m.now().UTC(), By: authctx.Actor(ctx), Reason: NormalizeReason(reason)}

	storeCtx, cancel := m.storeCtx(ctx)
	s, err := m.repo.Revoke(storeCtx, sessionID, rev)
	cancel()
	if err != nil {
		if repository.KindOf(err) == repository.KindNotFound {
			m.log.Debug("revokeSession: not found or already revoked", zap.String("session_id", sessionID))
		} else {
			add(ctx, m.metrics.storeErrors, 1, attribute.String("op", "revoke"))
			m.log.Error("revokeSession store failure", zap.String("session_id", sessionID), zap.Error(err))
		}
		return false
	}

	m.markRevoked(ctx, s)
	add(ctx, m.metrics.revoked, 1)
	m.log.Info("session revoked",
		zap.String("tenant_id", s.TenantID),
		zap.String("user_id", s.UserID),
		zap.String("session_id", s.ID),
		zap.String("revoked_by", rev.By),
		zap.String("reason", rev.Reason))
	m.dispatch(ctx, "LogRevocation", func(nctx context.Context) {
		m.notifier.LogRevocation(nctx, RevocationNotice{
			UserID: s.UserID, TenantID: s.TenantID, Sessions: []*domain.Session{s}, By: rev.By, Reason: rev.Reason,
		})
	})
	return true
}

// RevokeAllSessions revokes every unrevoked session of the user in the tenant (forced logout)
// and returns how many were revoked. Store failures and invalid identities yield 0.
func (m *Manager) RevokeAllSessions(ctx context.Context, userID, tenantID, reason string) int {
	ctx, span := m.tracer.Start(ctx, "session.RevokeAllSessions", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer span.End()

	userID, tenantID = strings.TrimSpace(userID), strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return 0
	}
	rev := domain.Revocation{At: m.now().UTC(), By: authctx.Actor(ctx), Reason: NormalizeReason(reason)}

	storeCtx, cancel := m.storeCtx(ctx)
	sessions, err := m.repo.RevokeAllByUserAndTenant(storeCtx, userID, tenantID, rev)
	cancel()
	if err != nil {
		add(ctx, m.metrics.storeErrors, 1, attribute.String("op", "revoke_all"))
		m.log.Error("revokeAllSessions store failure",
			zap.String("tenant_id", tenantID), zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	if len(sessions) == 0 {
		return 0
	}
	for _, s := range sessions {
		m.markRevoked(ctx, s)
	}
	add(ctx, m.metrics.revoked, int64(len(sessions)))
	m.log.Info("sessions revoked",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.Int("count", len(sessions)),
		zap.String("revoked_by", rev.By))
	m.dispatch(ctx, "LogRevocation", func(nctx context.Context) {
		m.notifier.LogRevocation(nctx, RevocationNotice{
			UserID: userID, TenantID: tenantID, Sessions: sessions, By: rev.By, Reason: rev.Reason, Bulk: true,
		})
	})
	return len(sessions)
}

// SessionList is the result of ListUserSessions. Unavailable is set when the store could not
// be read; Sessions is then empty and says nothing about what the user actually has.
type SessionList struct {
	Sessions    []domain.View
	Unavailable bool
}

// GetUserSessions lists the user's sessions in the tenant, most recent activity first, including
// expired and revoked rows with their derived state. The only error is ErrInvalidIdentity; a
// store failure yields an empty list. Use ListUserSessions to tell the two apart.
func (m *Manager) GetUserSessions(ctx context.Context, userID, tenantID string) ([]domain.View, error) {
	list, err := m.ListUserSessions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// ListUserSessions is GetUserSessions with the store failure reported as Unavailable instead
// of being folded into an empty list.
func (m *Manager) ListUserSessions(ctx context.Context, userID, tenantID string) (SessionList, error) {
	ctx, span := m.tracer.Start(ctx, "session.GetUserSessions", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer span.End()

	userID, tenantID = strings.TrimSpace(userID), strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return SessionList{}, domain.ErrInvalidIdentity
	}
	storeCtx, cancel := m.storeCtx(ctx)
	sessions, err := m.repo.ListByUserAndTenant(storeCtx, userID, tenantID)
	cancel()
	if err != nil {
		add(ctx, m.metrics.storeErrors, 1, attribute.String("op", "list"))
		span.SetAttributes(attribute.Bool("session.unavailable", true))
		m.log.Error("getUserSessions store failure",
			zap.String("tenant_id", tenantID), zap.String("user_id", userID), zap.Error(err))
		return SessionList{Sessions: []domain.View{}, Unavailable: true}, nil
	}

	policy := m.policyFor(ctx, tenantID)
	now := m.now().UTC()
	current, _ := authctx.SessionID(ctx)
	views := make([]domain.View, 0, len(sessions))
	for _, s := range sessions {
		if s.UserID != userID || s.TenantID != tenantID {
			m.log.Error("getUserSessions: store returned a row outside the requested scope",
				zap.String("tenant_id", tenantID), zap.String("session_id", s.ID))
			continue
		}
		v := domain.NewView(s, now, policy)
		v.Current = current != "" && current == s.ID
		views = append(views, v)
	}
	return SessionList{Sessions: views}, nil
}

// Drain waits until in-flight notifications finish or ctx is done.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lookup fetches the session for hash. ok is false when the session is absent or the store failed.
func (m *Manager) lookup(ctx context.Context, op, token, hash string) (*domain.Session, bool) {
	storeCtx, cancel := m.storeCtx(ctx)
	s, err := m.repo.GetByTokenHash(storeCtx, hash)
	cancel()
	if err != nil {
		if repository.KindOf(err) != repository.KindNotFound {
			add(ctx, m.metrics.storeErrors, 1, attribute.String("op", op))
			m.log.Error(op+"Session store failure, failing closed",
				zap.String("token_prefix", security.RedactToken(token)), zap.Error(err))
		}
		return nil, false
	}
	if s == nil || !security.TokenHashEqual(token, s.TokenHash) {
		return nil, false
	}
	return s, true
}

func (m *Manager) cachedRevoked(ctx context.Context, hash string) bool {
	if m.revocations == nil {
		return false
	}
	storeCtx, cancel := m.storeCtx(ctx)
	defer cancel()
	revoked, err := m.revocations.IsRevoked(storeCtx, hash)
	if err != nil {
		m.log.Debug("revocation cache lookup failed", zap.Error(err))
		return false
	}
	return revoked
}

func (m *Manager) markRevoked(ctx context.Context, s *domain.Session) {
	if m.revocations == nil || s == nil {
		return
	}
	storeCtx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.revocations.MarkRevoked(storeCtx, s.TokenHash, s.ExpiresAt.Sub(m.now())); err != nil {
		m.log.Warn("revocation cache write failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (m *Manager) policyFor(ctx context.Context, tenantID string) domain.Policy {
	storeCtx, cancel := m.storeCtx(ctx)
	defer cancel()
	p, err := m.policies.SessionPolicy(storeCtx, tenantID)
	if err != nil {
		m.log.Warn("session policy lookup failed, using defaults", zap.String("tenant_id", tenantID), zap.Error(err))
		return domain.DefaultPolicy()
	}
	return p.Normalize()
}

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

// dispatch runs fn in the background with a bounded timeout. The request's cancellation does not
// propagate; its values (identity, trace) do.
func (m *Manager) dispatch(ctx context.Context, op string, fn func(context.Context)) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("session notifier panicked", zap.String("op", op), zap.Any("panic", r))
			}
		}()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		fn(nctx)
	}()
}

// confirmInsert reports whether s was persisted despite a failed commit.
func (m *Manager) confirmInsert(ctx context.Context, s *domain.Session) bool {
	storeCtx, cancel := m.storeCtx(ctx)
	defer cancel()
	stored, err := m.repo.GetByTokenHash(storeCtx, s.TokenHash)
	return err == nil && stored.ID == s.ID
}

// deniedError names the cap behind an insert conflict. A unique violation carries neither
// limit error and is reported without detail.
func deniedError(err error) error {
	switch {
	case errors.Is(err, repository.ErrTotalLimit):
		return fmt.Errorf("%w: total sessions for user", domain.ErrConcurrentSessionDenied)
	case errors.Is(err, repository.ErrDeviceLimit):
		return fmt.Errorf("%w: sessions on this device", domain.ErrConcurrentSessionDenied)
	default:
		return domain.ErrConcurrentSessionDenied
	}
}

// NormalizeReason trims reason and caps it at MaxReasonBytes without splitting a rune.
func NormalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DefaultRevocationReason
	}
	if len(reason) <= MaxReasonBytes {
		return reason
	}
	cut := MaxReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return strings.TrimSpace(reason[:cut])
}

func normalizeIP(ip string) string {
	addr, ok := clientctx.ParseIP(ip)
	if !ok {
		return ""
	}
	return addr.String()
}

// IsContractError reports whether err is a caller contract violation rather than a business denial.
func IsContractError(err error) bool {
	return errors.Is(err, domain.ErrInvalidIdentity) ||
		errors.Is(err, domain.ErrMissingDeviceInfo) ||
		errors.Is(err, domain.ErrInvalidToken)
}
