package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/domain"
	auditrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/repository"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByTenant(context.Context, string, auditrepo.Filter) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" }, nil)

	logger.LogEvent(context.Background(), Event{
		TenantID: "tenant-1", UserID: "user-1", SessionID: "sess-1",
		Action: ActionSessionRevoked, Resource: ResourceSession, Metadata: `{"reason":"lost"}`,
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.TenantID != "tenant-1" || entry.UserID != "user-1" || entry.SessionID != "sess-1" {
		t.Errorf("identity = %q/%q/%q", entry.TenantID, entry.UserID, entry.SessionID)
	}
	if entry.Action != ActionSessionRevoked || entry.Resource != ResourceSession {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want 192.168.1.1", entry.IP)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("ID and CreatedAt should be set")
	}
}

func TestLogger_LogEvent_EventIPWins(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "10.0.0.1" }, nil)
	logger.LogEvent(context.Background(), Event{TenantID: "t", Action: "a", IP: "203.0.113.5"})
	if repo.entries[0].IP != "203.0.113.5" {
		t.Errorf("ip = %q, want event ip", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, nil).LogEvent(context.Background(), Event{TenantID: "t", Action: "a"})
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_SentinelTenantID(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, nil).LogEvent(context.Background(), Event{Action: "a"})
	if repo.entries[0].TenantID != SentinelTenantID {
		t.Errorf("tenant_id = %q, want %q", repo.entries[0].TenantID, SentinelTenantID)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	// Should not panic; error is logged only.
	NewLogger(repo, nil, nil).LogEvent(context.Background(), Event{TenantID: "t", Action: "a"})
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	NewLogger(nil, nil, nil).LogEvent(context.Background(), Event{Action: "a"})
	var l *Logger
	l.LogEvent(context.Background(), Event{Action: "a"})
}
