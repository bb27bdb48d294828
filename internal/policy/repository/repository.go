package repository

import (
	"context"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/domain"
)

// Repository defines persistence for tenant anomaly policies.
type Repository interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	GetEnabledByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}
