// Package authctx carries the authenticated request identity through a context.
package authctx

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	tenantIDKey  = contextKey{"tenant_id"}
	sessionIDKey = contextKey{"session_id"}
)

// SystemActor is the actor recorded for revocations performed without a request identity.
const SystemActor = "system"

// WithIdentity returns a context with user_id, tenant_id, and session_id set.
func WithIdentity(ctx context.Context, userID, tenantID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// WithActor returns a context carrying only a user id, for callers (CLI, jobs) that act
// on behalf of an operator rather than a session.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user_id from context and true if set; otherwise "", false.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// TenantID returns the tenant_id from context and true if set; otherwise "", false.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantIDKey).(string)
	return v, ok
}

// SessionID returns the session_id from context and true if set; otherwise "", false.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// Actor returns the user id to record as the actor of a mutation, or SystemActor.
func Actor(ctx context.Context) string {
	if v, ok := UserID(ctx); ok && v != "" {
		return v
	}
	return SystemActor
}
