package repository

import (
	"context"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/domain"
)

// Filter narrows ListByTenant. Empty fields are ignored.
type Filter struct {
	UserID    string
	SessionID string
	Action    string
	Limit     int
	Offset    int
}

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByTenant returns the tenant's audit logs, newest first.
	ListByTenant(ctx context.Context, tenantID string, f Filter) ([]*domain.AuditLog, error)
}
