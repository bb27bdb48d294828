package repository

import (
	"context"
	"sync"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/domain"
)

// MemoryRepository keeps tenant policies in process memory, in insertion order.
type MemoryRepository struct {
	mu       sync.RWMutex
	policies []domain.Policy
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) ListByTenant(_ context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.filter(func(p domain.Policy) bool { return p.TenantID == tenantID }), nil
}

func (r *MemoryRepository) GetEnabledByTenant(_ context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.filter(func(p domain.Policy) bool { return p.TenantID == tenantID && p.Enabled }), nil
}

func (r *MemoryRepository) filter(keep func(domain.Policy) bool) []*domain.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Policy
	for _, p := range r.policies {
		if keep(p) {
			out = append(out, &p)
		}
	}
	return out
}

func (r *MemoryRepository) Create(_ context.Context, p *domain.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append(r.policies, *p)
	return nil
}

func (r *MemoryRepository) SetEnabled(_ context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.policies {
		if r.policies[i].ID == id {
			r.policies[i].Enabled = enabled
		}
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
