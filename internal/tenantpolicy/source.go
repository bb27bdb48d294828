// Package tenantpolicy resolves the effective session policy of a tenant from its stored
// configuration and the process-wide defaults.
package tenantpolicy

import (
	"context"
	"fmt"

	sessiondomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/repository"
)

// Source reads tenant policy through a Repository. A nil Source or repository yields the base policy.
type Source struct {
	repo repository.Repository
	base sessiondomain.Policy
}

// NewSource returns a Source that fills unset tenant values from base.
func NewSource(repo repository.Repository, base sessiondomain.Policy) *Source {
	return &Source{repo: repo, base: base.Normalize()}
}

// Config returns the tenant's stored config merged with defaults.
func (s *Source) Config(ctx context.Context, tenantID string) (*domain.TenantPolicyConfig, error) {
	if s == nil || s.repo == nil {
		return domain.MergeWithDefaults(nil, sessiondomain.DefaultPolicy()), nil
	}
	stored, err := s.repo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return domain.MergeWithDefaults(nil, s.base), fmt.Errorf("tenant policy %s: %w", tenantID, err)
	}
	return domain.MergeWithDefaults(stored, s.base), nil
}

// SessionPolicy returns the effective session policy. On error it still returns the base
// policy so callers can proceed with defaults.
func (s *Source) SessionPolicy(ctx context.Context, tenantID string) (sessiondomain.Policy, error) {
	base := sessiondomain.DefaultPolicy()
	if s != nil {
		base = s.base
	}
	c, err := s.Config(ctx, tenantID)
	if err != nil {
		return base, err
	}
	return c.SessionMgmt.Policy(base), nil
}

// AnomalyAlerts returns the tenant's alerting switches.
func (s *Source) AnomalyAlerts(ctx context.Context, tenantID string) (domain.AnomalyAlerts, error) {
	c, err := s.Config(ctx, tenantID)
	return *c.AnomalyAlerts, err
}
