package authctx

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "tenant-1", "session-1")

	userID, ok := UserID(ctx)
	if !ok || userID != "user-1" {
		t.Errorf("UserID = %q, %v; want user-1, true", userID, ok)
	}
	tenantID, ok := TenantID(ctx)
	if !ok || tenantID != "tenant-1" {
		t.Errorf("TenantID = %q, %v; want tenant-1, true", tenantID, ok)
	}
	sessionID, ok := SessionID(ctx)
	if !ok || sessionID != "session-1" {
		t.Errorf("SessionID = %q, %v; want session-1, true", sessionID, ok)
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if v, ok := UserID(ctx); ok || v != "" {
		t.Errorf("UserID = %q, %v; want empty, false", v, ok)
	}
	if v, ok := TenantID(ctx); ok || v != "" {
		t.Errorf("TenantID = %q, %v; want empty, false", v, ok)
	}
	if v, ok := SessionID(ctx); ok || v != "" {
		t.Errorf("SessionID = %q, %v; want empty, false", v, ok)
	}
}

func TestActor(t *testing.T) {
	if got := Actor(context.Background()); got != SystemActor {
		t.Errorf("Actor(empty) = %q, want %q", got, SystemActor)
	}
	if got := Actor(WithActor(context.Background(), "admin-7")); got != "admin-7" {
		t.Errorf("Actor = %q, want admin-7", got)
	}
	if got := Actor(WithIdentity(context.Background(), "", "t", "s")); got != SystemActor {
		t.Errorf("Actor(blank user) = %q, want %q", got, SystemActor)
	}
}

func TestContext_Isolation(t *testing.T) {
	parent := WithIdentity(context.Background(), "user-1", "tenant-1", "session-1")
	child := WithIdentity(parent, "user-2", "tenant-2", "session-2")

	if v, _ := UserID(parent); v != "user-1" {
		t.Errorf("parent user_id = %q, want user-1", v)
	}
	if v, _ := UserID(child); v != "user-2" {
		t.Errorf("child user_id = %q, want user-2", v)
	}
}
