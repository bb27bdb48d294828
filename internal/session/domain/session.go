package domain

import (
	"time"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
)

// Session represents an authenticated user session bound to one tenant and one device.
type Session struct {
	ID       string
	UserID   string
	TenantID string
	// TokenHash is the digest of the client token; the token itself is never stored.
	TokenHash         string
	DeviceInfo        clientctx.DeviceInfo
	DeviceFingerprint string
	UserAgent         string
	IPAddress         string
	LastIPAddress     string
	Geo               *clientctx.GeoLocation // nil when absent
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	IsActive          bool
	IsRevoked         bool
	RevokedAt         *time.Time // nil when not revoked
	RevokedBy         string
	RevokedReason     string
	RememberDevice    bool
	// Ephemeral marks a session synthesized while the store was unavailable. It was never persisted.
	Ephemeral bool
}

// Revocation carries the audit stamp written when a session is revoked.
type Revocation struct {
	At     time.Time
	By     string
	Reason string
}

// State is the lifecycle state of a session as observed at a point in time.
type State string

const (
	StateActive   State = "active"
	StateExpired  State = "expired"
	StateRevoked  State = "revoked"
	StateNotFound State = "not_found"
)

// IdleDeadline returns when the session expires for inactivity, or the zero time when idle
// expiry does not apply (remember-device sessions, or no idle window configured).
func (s *Session) IdleDeadline(p Policy) time.Time {
	if s.RememberDevice || p.MaxIdle() <= 0 {
		return time.Time{}
	}
	return s.LastActivityAt.Add(p.MaxIdle())
}

// StateAt derives the session state at now. Revocation wins over expiry so that a revoked
// session is always reported as revoked. Both deadlines are inclusive: a session is expired
// only once now is past expiresAt or past the idle deadline.
func (s *Session) StateAt(now time.Time, p Policy) State {
	if s == nil {
		return StateNotFound
	}
	if s.IsRevoked || !s.IsActive {
		return StateRevoked
	}
	if now.After(s.ExpiresAt) {
		return StateExpired
	}
	if idle := s.IdleDeadline(p); !idle.IsZero() && now.After(idle) {
		return StateExpired
	}
	return StateActive
}

// View is a read-only projection used by "your active devices" listings.
type View struct {
	ID             string
	UserID         string
	TenantID       string
	DeviceInfo     clientctx.DeviceInfo
	IPAddress      string
	LastIPAddress  string
	Geo            *clientctx.GeoLocation
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	IdleDeadline   *time.Time
	State          State
	RememberDevice bool
	RevokedAt      *time.Time
	RevokedReason  string
	Current        bool
}

// NewView projects s as observed at now.
func NewView(s *Session, now time.Time, p Policy) View {
	v := View{
		ID:             s.ID,
		UserID:         s.UserID,
		TenantID:       s.TenantID,
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		LastIPAddress:  s.LastIPAddress,
		Geo:            s.Geo,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		State:          s.StateAt(now, p),
		RememberDevice: s.RememberDevice,
		RevokedAt:      s.RevokedAt,
		RevokedReason:  s.RevokedReason,
	}
	if idle := s.IdleDeadline(p); !idle.IsZero() {
		v.IdleDeadline = &idle
	}
	return v
}
