package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a tenant policy repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByTenantID returns the config for the tenant, or nil if not found.
func (r *PostgresRepository) GetByTenantID(ctx context.Context, tenantID string) (*domain.TenantPolicyConfig, error) {
	query, args, err := psq.Select("config_json").
		From("tenant_session_policies").
		Where(sq.Eq{"tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building policy query: %w", err)
	}
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tenant policy: %w", err)
	}
	var config domain.TenantPolicyConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("decoding tenant policy: %w", err)
	}
	return &config, nil
}

// Upsert saves or replaces the config for the tenant.
func (r *PostgresRepository) Upsert(ctx context.Context, tenantID string, config *domain.TenantPolicyConfig) error {
	if config == nil {
		config = &domain.TenantPolicyConfig{}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding tenant policy: %w", err)
	}
	query, args, err := psq.Insert("tenant_session_policies").
		Columns("tenant_id", "config_json", "updated_at").
		Values(tenantID, raw, time.Now().UTC()).
		Suffix("ON CONFLICT (tenant_id) DO UPDATE SET config_json = EXCLUDED.config_json, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building policy upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting tenant policy: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
