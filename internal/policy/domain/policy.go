package domain

import "time"

// Policy is a tenant-level Rego module that overrides the default session anomaly policy.
// Rules must declare package session.anomaly.
type Policy struct {
	ID        string
	TenantID  string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
