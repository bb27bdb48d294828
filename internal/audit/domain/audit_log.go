package domain

import "time"

// AuditLog represents an audit event scoped to a tenant.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	SessionID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
