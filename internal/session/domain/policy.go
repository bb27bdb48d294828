package domain

import "time"

// Defaults applied when a tenant has no session policy configured.
const (
	DefaultMaxConcurrentSessionsPerDevice = 1
	DefaultMaxIdleMinutes                 = 30
	DefaultMaxSessionHours                = 24
)

// Policy is the per-tenant session policy.
type Policy struct {
	// MaxConcurrentSessionsPerDevice caps active sessions per (user, tenant, device fingerprint).
	// 0 disables the device dedup check.
	MaxConcurrentSessionsPerDevice int
	// MaxConcurrentSessions caps active sessions per (user, tenant) across all devices. 0 = unlimited.
	MaxConcurrentSessions int
	// MaxIdleMinutes is the idle window; 0 disables idle expiry.
	MaxIdleMinutes int
	// MaxSessionHours is the absolute session length.
	MaxSessionHours int
}

// DefaultPolicy returns the policy used for tenants without configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrentSessionsPerDevice: DefaultMaxConcurrentSessionsPerDevice,
		MaxIdleMinutes:                 DefaultMaxIdleMinutes,
		MaxSessionHours:                DefaultMaxSessionHours,
	}
}

// Normalize replaces out-of-range values with defaults. MaxSessionHours must be positive;
// negative limits and idle windows are treated as unset.
func (p Policy) Normalize() Policy {
	if p.MaxSessionHours <= 0 {
		p.MaxSessionHours = DefaultMaxSessionHours
	}
	if p.MaxConcurrentSessionsPerDevice < 0 {
		p.MaxConcurrentSessionsPerDevice = DefaultMaxConcurrentSessionsPerDevice
	}
	if p.MaxConcurrentSessions < 0 {
		p.MaxConcurrentSessions = 0
	}
	if p.MaxIdleMinutes < 0 {
		p.MaxIdleMinutes = DefaultMaxIdleMinutes
	}
	return p
}

// MaxSession returns MaxSessionHours as a duration.
func (p Policy) MaxSession() time.Duration {
	return time.Duration(p.MaxSessionHours) * time.Hour
}

// MaxIdle returns MaxIdleMinutes as a duration; 0 when idle expiry is disabled.
func (p Policy) MaxIdle() time.Duration {
	return time.Duration(p.MaxIdleMinutes) * time.Minute
}

// DedupEnabled reports whether the per-device concurrent session cap is enforced.
func (p Policy) DedupEnabled() bool {
	return p.MaxConcurrentSessionsPerDevice > 0
}
