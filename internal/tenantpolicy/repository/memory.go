package repository

import (
	"context"
	"sync"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

// MemoryRepository keeps tenant policies in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	configs map[string]domain.TenantPolicyConfig
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{configs: make(map[string]domain.TenantPolicyConfig)}
}

func (r *MemoryRepository) GetByTenantID(_ context.Context, tenantID string) (*domain.TenantPolicyConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[tenantID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, tenantID string, config *domain.TenantPolicyConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if config == nil {
		config = &domain.TenantPolicyConfig{}
	}
	r.configs[tenantID] = *config
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
