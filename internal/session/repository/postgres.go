package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists the columns read back for a session row, in scan order.
var sessionColumns = []string{
	"id", "user_id", "tenant_id", "token_hash", "device_info", "device_fingerprint",
	"user_agent", "ip_address", "last_ip_address", "geo", "created_at", "last_activity_at",
	"expires_at", "is_active", "is_revoked", "revoked_at", "revoked_by", "revoked_reason",
	"remember_device",
}

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert counts the user's active sessions under a transaction-scoped advisory lock keyed by
// tenant and user, then inserts s if no limit is reached.
func (r *PostgresRepository) Insert(ctx context.Context, s *domain.Session, limits InsertLimits) error {
	deviceJSON, err := json.Marshal(s.DeviceInfo)
	if err != nil {
		return fmt.Errorf("encoding device info: %w", err)
	}
	var geoJSON []byte
	if s.Geo != nil {
		if geoJSON, err = json.Marshal(s.Geo); err != nil {
			return fmt.Errorf("encoding geo: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.TenantID+":"+s.UserID); err != nil {
		return fmt.Errorf("locking user sessions: %w", err)
	}

	if limits.PerDevice > 0 || limits.Total > 0 {
		perDevice, total, err := r.countActive(ctx, tx, s, limits)
		if err != nil {
			return err
		}
		if limits.PerDevice > 0 && perDevice >= limits.PerDevice {
			return fmt.Errorf("%w (%d active)", ErrDeviceLimit, perDevice)
		}
		if limits.Total > 0 && total >= limits.Total {
			return fmt.Errorf("%w (%d active)", ErrTotalLimit, total)
		}
	}

	query, args, err := psq.Insert("sessions").
		Columns(sessionColumns...).
		Values(
			s.ID, s.UserID, s.TenantID, s.TokenHash, deviceJSON, s.DeviceFingerprint,
			s.UserAgent, s.IPAddress, s.LastIPAddress, nullableJSON(geoJSON), s.CreatedAt, s.LastActivityAt,
			s.ExpiresAt, s.IsActive, s.IsRevoked, timeToNullTime(s.RevokedAt), s.RevokedBy, s.RevokedReason,
			s.RememberDevice,
		).ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing session insert: %w", ErrCommitUncertain, err)
	}
	return nil
}

func (r *PostgresRepository) countActive(ctx context.Context, tx *sql.Tx, s *domain.Session, limits InsertLimits) (int, int, error) {
	qb := psq.Select().
		Column(sq.Expr("COUNT(*) FILTER (WHERE device_fingerprint = ?)", s.DeviceFingerprint)).
		Column("COUNT(*)").
		From("sessions").
		Where(sq.Eq{"user_id": s.UserID, "tenant_id": s.TenantID}).
		Where("is_active AND NOT is_revoked").
		Where(sq.GtOrEq{"expires_at": limits.Now})
	if !limits.IdleCutoff.IsZero() {
		qb = qb.Where(sq.Or{sq.Expr("remember_device"), sq.Gt{"last_activity_at": limits.IdleCutoff}})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("building active session count: %w", err)
	}
	var perDevice, total int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&perDevice, &total); err != nil {
		return 0, 0, fmt.Errorf("counting active sessions: %w", err)
	}
	return perDevice, total, nil
}

// GetByTokenHash returns the session holding tokenHash, or ErrNotFound.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.getOne(ctx, sq.Eq{"token_hash": tokenHash})
}

// GetByID returns the session for id, or ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *PostgresRepository) getOne(ctx context.Context, where sq.Eq) (*domain.Session, error) {
	query, args, err := psq.Select(sessionColumns...).From("sessions").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	return s, nil
}

// ListByUserAndTenant returns all sessions of the user in the tenant, most recent activity first.
func (r *PostgresRepository) ListByUserAndTenant(ctx context.Context, userID, tenantID string) ([]*domain.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"user_id": userID, "tenant_id": tenantID}).
		OrderBy("last_activity_at DESC", "created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session list: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return collectSessions(rows)
}

// Touch sets last_activity_at and last_ip_address on an active session. It never moves expires_at.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time, ip string) error {
	ub := psq.Update("sessions").
		Set("last_activity_at", at).
		Where(sq.Eq{"id": id}).
		Where("is_active AND NOT is_revoked").
		Where(sq.GtOrEq{"expires_at": at})
	if ip != "" {
		ub = ub.Set("last_ip_address", ip)
	}
	query, args, err := ub.ToSql()
	if err != nil {
		return fmt.Errorf("building session touch: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke transitions the session to revoked with a single conditional update, so concurrent
// callers observe exactly one success.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, rev domain.Revocation) (*domain.Session, error) {
	query, args, err := revokeUpdate(rev).
		Where(sq.Eq{"id": id}).
		Where("NOT is_revoked").
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session revoke: %w", err)
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("revoking session: %w", err)
	}
	return s, nil
}

// RevokeAllByUserAndTenant revokes every unrevoked session of the user in the tenant.
func (r *PostgresRepository) RevokeAllByUserAndTenant(ctx context.Context, userID, tenantID string, rev domain.Revocation) ([]*domain.Session, error) {
	query, args, err := revokeUpdate(rev).
		Where(sq.Eq{"user_id": userID, "tenant_id": tenantID}).
		Where("NOT is_revoked").
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building bulk revoke: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("revoking user sessions: %w", err)
	}
	return collectSessions(rows)
}

func revokeUpdate(rev domain.Revocation) sq.UpdateBuilder {
	return psq.Update("sessions").
		Set("is_revoked", true).
		Set("is_active", false).
		Set("revoked_at", rev.At).
		Set("revoked_by", rev.By).
		Set("revoked_reason", rev.Reason)
}

func joinColumns() string {
	return strings.Join(sessionColumns, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s          domain.Session
		deviceJSON []byte
		geoJSON    []byte
		revokedAt  sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.TenantID, &s.TokenHash, &deviceJSON, &s.DeviceFingerprint,
		&s.UserAgent, &s.IPAddress, &s.LastIPAddress, &geoJSON, &s.CreatedAt, &s.LastActivityAt,
		&s.ExpiresAt, &s.IsActive, &s.IsRevoked, &revokedAt, &s.RevokedBy, &s.RevokedReason,
		&s.RememberDevice,
	)
	if err != nil {
		return nil, err
	}
	s.DeviceInfo = clientctx.UnknownDevice()
	if len(deviceJSON) > 0 {
		if err := json.Unmarshal(deviceJSON, &s.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decoding device info: %w", err)
		}
	}
	if len(geoJSON) > 0 {
		var g clientctx.GeoLocation
		if err := json.Unmarshal(geoJSON, &g); err != nil {
			return nil, fmt.Errorf("decoding geo: %w", err)
		}
		s.Geo = &g
	}
	s.RevokedAt = nullTimeToPtr(revokedAt)
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	defer func() { _ = rows.Close() }()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return out, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

var _ Repository = (*PostgresRepository)(nil)
