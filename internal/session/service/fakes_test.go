package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/repository"
	tpdomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

var errStoreDown = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")

var chromeWindows = clientctx.DeviceInfo{Browser: "Chrome", OS: "Windows", Device: clientctx.DeviceDesktop}

var safariIOS = clientctx.DeviceInfo{Browser: "Safari", OS: "iOS", Device: clientctx.DeviceMobile, IsMobile: true}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// faultyRepo wraps a repository and fails selected operations.
type faultyRepo struct {
	repository.Repository
	mu   sync.Mutex
	fail map[string]error
	// expire forces ExpiresAt on reads, keyed by session id.
	expire map[string]time.Time
	// foreign rows are appended to list results.
	foreign []*domain.Session
}

func newFaultyRepo() *faultyRepo {
	return &faultyRepo{
		Repository: repository.NewMemoryRepository(),
		fail:       make(map[string]error),
		expire:     make(map[string]time.Time),
	}
}

func (r *faultyRepo) failAll(err error) {
	for _, op := range []string{"insert", "get", "getByID", "list", "touch", "revoke", "revokeAll"} {
		r.setFail(op, err)
	}
}

func (r *faultyRepo) setFail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

func (r *faultyRepo) err(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fail[op]
}

func (r *faultyRepo) Insert(ctx context.Context, s *domain.Session, limits repository.InsertLimits) error {
	if err := r.err("insert"); err != nil {
		return err
	}
	if err := r.Repository.Insert(ctx, s, limits); err != nil {
		return err
	}
	// "commit" fails after the row is stored, like a commit whose reply was lost.
	return r.err("commit")
}

func (r *faultyRepo) GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	if err := r.err("get"); err != nil {
		return nil, err
	}
	s, err := r.Repository.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if at, ok := r.expire[s.ID]; ok {
		s.ExpiresAt = at
	}
	r.mu.Unlock()
	return s, nil
}

func (r *faultyRepo) ListByUserAndTenant(ctx context.Context, userID, tenantID string) ([]*domain.Session, error) {
	if err := r.err("list"); err != nil {
		return nil, err
	}
	out, err := r.Repository.ListByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	out = append(out, r.foreign...)
	r.mu.Unlock()
	return out, nil
}

func (r *faultyRepo) Touch(ctx context.Context, id string, at time.Time, ip string) error {
	if err := r.err("touch"); err != nil {
		return err
	}
	return r.Repository.Touch(ctx, id, at, ip)
}

func (r *faultyRepo) Revoke(ctx context.Context, id string, rev domain.Revocation) (*domain.Session, error) {
	if err := r.err("revoke"); err != nil {
		return nil, err
	}
	return r.Repository.Revoke(ctx, id, rev)
}

func (r *faultyRepo) RevokeAllByUserAndTenant(ctx context.Context, userID, tenantID string, rev domain.Revocation) ([]*domain.Session, error) {
	if err := r.err("revokeAll"); err != nil {
		return nil, err
	}
	return r.Repository.RevokeAllByUserAndTenant(ctx, userID, tenantID, rev)
}

// blockingRepo never answers until the context is done.
type blockingRepo struct{ repository.Repository }

func (blockingRepo) Insert(ctx context.Context, _ *domain.Session, _ repository.InsertLimits) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingRepo) GetByTokenHash(ctx context.Context, _ string) (*domain.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingNotifier struct {
	mu          sync.Mutex
	logins      []LoginNotice
	revocations []RevocationNotice
	anomalies   []AnomalyNotice
}

func (n *recordingNotifier) LogLogin(_ context.Context, l LoginNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logins = append(n.logins, l)
}

func (n *recordingNotifier) LogRevocation(_ context.Context, r RevocationNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revocations = append(n.revocations, r)
}

func (n *recordingNotifier) AlertAnomaly(_ context.Context, a AnomalyNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.anomalies = append(n.anomalies, a)
}

func (n *recordingNotifier) counts() (int, int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.logins), len(n.revocations), len(n.anomalies)
}

type panickingNotifier struct{}

func (panickingNotifier) LogLogin(context.Context, LoginNotice) { panic("audit sink exploded") }
func (panickingNotifier) LogRevocation(context.Context, RevocationNotice) {
	panic("audit sink exploded")
}
func (panickingNotifier) AlertAnomaly(context.Context, AnomalyNotice) { panic("alert sink exploded") }

// slowNotifier blocks until released, to prove the Manager does not wait for it.
type slowNotifier struct {
	nopNotifier
	release chan struct{}
}

func (n slowNotifier) LogLogin(ctx context.Context, _ LoginNotice) {
	select {
	case <-n.release:
	case <-ctx.Done():
	}
}

type fakeRevocationCache struct {
	mu      sync.Mutex
	marked  map[string]time.Duration
	readErr error
}

func newFakeRevocationCache() *fakeRevocationCache {
	return &fakeRevocationCache{marked: make(map[string]time.Duration)}
}

func (c *fakeRevocationCache) MarkRevoked(_ context.Context, hash string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marked[hash] = ttl
	return nil
}

func (c *fakeRevocationCache) IsRevoked(_ context.Context, hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return false, c.readErr
	}
	_, ok := c.marked[hash]
	return ok, nil
}

type fakeEvaluator struct {
	mu     sync.Mutex
	inputs []engine.AnomalyInput
	result engine.AnomalyResult
}

func (e *fakeEvaluator) EvaluateRefresh(_ context.Context, in engine.AnomalyInput) (engine.AnomalyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, in)
	return e.result, nil
}

func (e *fakeEvaluator) calls() []engine.AnomalyInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.AnomalyInput(nil), e.inputs...)
}

// tenantPolicies is a PolicySource with per-tenant overrides and alert switches.
type tenantPolicies struct {
	policies map[string]domain.Policy
	alerts   tpdomain.AnomalyAlerts
	err      error
}

func (p tenantPolicies) SessionPolicy(_ context.Context, tenantID string) (domain.Policy, error) {
	if p.err != nil {
		return domain.Policy{}, p.err
	}
	if pol, ok := p.policies[tenantID]; ok {
		return pol, nil
	}
	return domain.DefaultPolicy(), nil
}

func (p tenantPolicies) AnomalyAlerts(context.Context, string) (tpdomain.AnomalyAlerts, error) {
	return p.alerts, p.err
}
