package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var auditColumns = []string{
	"id", "tenant_id", "user_id", "session_id", "action", "resource", "ip", "metadata", "created_at",
}

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	query, args, err := psq.Insert("session_audit_logs").
		Columns(auditColumns...).
		Values(a.ID, a.TenantID, nullString(a.UserID), nullString(a.SessionID), a.Action, a.Resource, a.IP, nullString(a.Metadata), a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building audit insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListByTenant returns audit logs for the tenant, newest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, f Filter) ([]*domain.AuditLog, error) {
	qb := psq.Select(auditColumns...).From("session_audit_logs").Where(sq.Eq{"tenant_id": tenantID})
	if f.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.SessionID != "" {
		qb = qb.Where(sq.Eq{"session_id": f.SessionID})
	}
	if f.Action != "" {
		qb = qb.Where(sq.Eq{"action": f.Action})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	qb = qb.OrderBy("created_at DESC").Limit(uint64(limit))
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                       domain.AuditLog
			userID, sessionID, meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &userID, &sessionID, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		a.UserID, a.SessionID, a.Metadata = userID.String, sessionID.String, meta.String
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log rows: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repository = (*PostgresRepository)(nil)
