package domain

import "errors"

// Contract violations and business denials returned by the session manager.
var (
	ErrInvalidIdentity         = errors.New("invalid_identity: user id and tenant id are required")
	ErrMissingDeviceInfo       = errors.New("missing_device_info: device info is required")
	ErrInvalidToken            = errors.New("invalid_token: malformed session token")
	ErrConcurrentSessionDenied = errors.New("concurrent_session_denied: active session limit reached")
)

// InvalidReason explains why a token did not validate.
type InvalidReason string

const (
	ReasonNotFound InvalidReason = "not_found"
	ReasonExpired  InvalidReason = "session_expired"
	ReasonRevoked  InvalidReason = "session_revoked"
)

// Principal is the authenticated identity carried by a valid session.
type Principal struct {
	UserID    string
	TenantID  string
	SessionID string
}

// ValidationOutcome is the result of validating a token: either Valid with the session and
// principal, or invalid with a Reason. Expected states are never reported as errors.
type ValidationOutcome struct {
	Valid     bool
	Reason    InvalidReason
	Session   *Session
	Principal Principal
}

// ValidOutcome builds a Valid outcome for s.
func ValidOutcome(s *Session) ValidationOutcome {
	return ValidationOutcome{
		Valid:     true,
		Session:   s,
		Principal: Principal{UserID: s.UserID, TenantID: s.TenantID, SessionID: s.ID},
	}
}

// InvalidOutcome builds an invalid outcome with reason.
func InvalidOutcome(reason InvalidReason) ValidationOutcome {
	return ValidationOutcome{Reason: reason}
}

// String returns "valid" or the invalid reason.
func (o ValidationOutcome) String() string {
	if o.Valid {
		return "valid"
	}
	return string(o.Reason)
}
