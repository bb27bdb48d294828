package domain

import (
	"time"

	sessiondomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

// SessionMgmt holds tenant-level session policy.
type SessionMgmt struct {
	SessionMaxTtl          string `json:"session_max_ttl"`          // e.g. "24h"
	IdleTimeout            string `json:"idle_timeout"`             // e.g. "30m"; "0" disables idle expiry
	MaxSessionsPerDevice   int    `json:"max_sessions_per_device"`  // 0 = no device dedup
	ConcurrentSessionLimit int    `json:"concurrent_session_limit"` // 0 = unlimited
}

// AnomalyAlerts holds tenant-level alerting for suspicious session activity.
type AnomalyAlerts struct {
	AlertOnIPChange      bool `json:"alert_on_ip_change"`
	AlertOnCountryChange bool `json:"alert_on_country_change"`
}

// TenantPolicyConfig is stored as JSON per tenant. Nil sections mean "use defaults".
type TenantPolicyConfig struct {
	SessionMgmt   *SessionMgmt   `json:"session_mgmt,omitempty"`
	AnomalyAlerts *AnomalyAlerts `json:"anomaly_alerts,omitempty"`
}

// SessionMgmtFromPolicy renders p in the stored representation.
func SessionMgmtFromPolicy(p sessiondomain.Policy) SessionMgmt {
	return SessionMgmt{
		SessionMaxTtl:          (time.Duration(p.MaxSessionHours) * time.Hour).String(),
		IdleTimeout:            (time.Duration(p.MaxIdleMinutes) * time.Minute).String(),
		MaxSessionsPerDevice:   p.MaxConcurrentSessionsPerDevice,
		ConcurrentSessionLimit: p.MaxConcurrentSessions,
	}
}

// DefaultAnomalyAlerts returns default AnomalyAlerts (alert on both).
func DefaultAnomalyAlerts() AnomalyAlerts {
	return AnomalyAlerts{AlertOnIPChange: true, AlertOnCountryChange: true}
}

// MergeWithDefaults returns a copy of c with nil sections replaced by defaults derived from base.
func MergeWithDefaults(c *TenantPolicyConfig, base sessiondomain.Policy) *TenantPolicyConfig {
	out := TenantPolicyConfig{}
	if c != nil {
		out = *c
	}
	if out.SessionMgmt == nil {
		out.SessionMgmt = ptr(SessionMgmtFromPolicy(base))
	}
	if out.AnomalyAlerts == nil {
		out.AnomalyAlerts = ptr(DefaultAnomalyAlerts())
	}
	return &out
}

// Policy converts the session section to a session policy. Values that fail to parse
// fall back to base field by field.
func (m SessionMgmt) Policy(base sessiondomain.Policy) sessiondomain.Policy {
	p := base
	if d, err := time.ParseDuration(m.SessionMaxTtl); err == nil && d >= time.Hour {
		p.MaxSessionHours = int(d / time.Hour)
	}
	if m.IdleTimeout == "0" {
		p.MaxIdleMinutes = 0
	} else if d, err := time.ParseDuration(m.IdleTimeout); err == nil && d >= 0 {
		p.MaxIdleMinutes = int(d / time.Minute)
	}
	if m.MaxSessionsPerDevice >= 0 {
		p.MaxConcurrentSessionsPerDevice = m.MaxSessionsPerDevice
	}
	if m.ConcurrentSessionLimit >= 0 {
		p.MaxConcurrentSessions = m.ConcurrentSessionLimit
	}
	return p.Normalize()
}

func ptr[T any](v T) *T { return &v }
