package repository

import (
	"context"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

// Repository persists tenant policy config.
type Repository interface {
	// GetByTenantID returns the config for the tenant, or nil if not found (caller applies defaults).
	GetByTenantID(ctx context.Context, tenantID string) (*domain.TenantPolicyConfig, error)
	// Upsert saves or replaces the config for the tenant.
	Upsert(ctx context.Context, tenantID string, config *domain.TenantPolicyConfig) error
}
