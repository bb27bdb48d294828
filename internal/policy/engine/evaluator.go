package engine

import "context"

// Severity grades a session anomaly.
type Severity string

const (
	SeverityNone Severity = "none"
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)

// AnomalyInput describes a refresh whose client context may differ from the session's.
type AnomalyInput struct {
	TenantID        string
	UserID          string
	SessionID       string
	PreviousIP      string
	CurrentIP       string
	PreviousCountry string
	CurrentCountry  string
	// Tenant alert switches.
	AlertOnIPChange      bool
	AlertOnCountryChange bool
}

// AnomalyResult is the outcome of evaluating the anomaly policy.
type AnomalyResult struct {
	Severity Severity
	Reasons  []string
}

// Alerting reports whether the result warrants a notification.
func (r AnomalyResult) Alerting() bool {
	return r.Severity != "" && r.Severity != SeverityNone
}

// Evaluator evaluates session anomaly policies using OPA or other engines.
type Evaluator interface {
	EvaluateRefresh(ctx context.Context, in AnomalyInput) (AnomalyResult, error)
}
