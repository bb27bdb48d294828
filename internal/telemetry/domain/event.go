package domain

import (
	"encoding/json"
	"time"
)

// Session event types.
const (
	EventSessionCreated          = "session.created"
	EventSessionFallback         = "session.fallback"
	EventSessionConcurrentDenied = "session.concurrent_denied"
	EventSessionRevoked          = "session.revoked"
	EventSessionAnomaly          = "session.anomaly"
	EventGRPCRequest             = "grpc.request"
)

// Severity levels for alerts.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

// Event is a tenant-scoped session event. It is the payload written to Kafka and OTel logs.
type Event struct {
	TenantID  string          `json:"tenantId"`
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Severity  string          `json:"severity,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// WithMetadata returns a copy of e with v marshaled into Metadata. Values that fail to
// marshal leave Metadata empty.
func (e Event) WithMetadata(v any) Event {
	raw, err := json.Marshal(v)
	if err == nil {
		e.Metadata = raw
	}
	return e
}
