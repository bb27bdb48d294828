package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/domain"
)

func TestPostgresGetEnabledByTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM tenant_anomaly_policies WHERE enabled = .+ AND tenant_id = .+ ORDER BY created_at").
		WithArgs(true, "tenant-1").
		WillReturnRows(sqlmock.NewRows(policyColumns).AddRow("p1", "tenant-1", "package session.anomaly", true, now))

	list, err := NewPostgresRepository(db).GetEnabledByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAndSetEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPostgresRepository(db)
	mock.ExpectExec("INSERT INTO tenant_anomaly_policies").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tenant_anomaly_policies SET enabled").WithArgs(false, "p1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), &domain.Policy{ID: "p1", TenantID: "tenant-1", Rules: "x", Enabled: true, CreatedAt: time.Now()}))
	require.NoError(t, repo.SetEnabled(context.Background(), "p1", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}
