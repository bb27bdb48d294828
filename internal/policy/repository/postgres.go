package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/domain"
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var policyColumns = []string{"id", "tenant_id", "rules", "enabled", "created_at"}

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByTenant returns all policies for the tenant, oldest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.list(ctx, sq.Eq{"tenant_id": tenantID})
}

// GetEnabledByTenant returns the tenant's enabled policies, oldest first.
func (r *PostgresRepository) GetEnabledByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.list(ctx, sq.Eq{"tenant_id": tenantID, "enabled": true})
}

func (r *PostgresRepository) list(ctx context.Context, where sq.Eq) ([]*domain.Policy, error) {
	query, args, err := psq.Select(policyColumns...).From("tenant_anomaly_policies").Where(where).OrderBy("created_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building policy query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating policy rows: %w", err)
	}
	return out, nil
}

// Create persists the policy. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	query, args, err := psq.Insert("tenant_anomaly_policies").
		Columns(policyColumns...).
		Values(p.ID, p.TenantID, p.Rules, p.Enabled, p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building policy insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting policy: %w", err)
	}
	return nil
}

// SetEnabled toggles a policy.
func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query, args, err := psq.Update("tenant_anomaly_policies").Set("enabled", enabled).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building policy update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating policy: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
