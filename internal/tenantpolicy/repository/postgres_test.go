package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

func TestPostgresGetByTenantID_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	raw := []byte(`{"session_mgmt":{"session_max_ttl":"8h","idle_timeout":"15m","max_sessions_per_device":1,"concurrent_session_limit":3}}`)
	mock.ExpectQuery("SELECT config_json FROM tenant_session_policies").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"config_json"}).AddRow(raw))

	got, err := NewPostgresRepository(db).GetByTenantID(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.SessionMgmt)
	assert.Equal(t, "8h", got.SessionMgmt.SessionMaxTtl)
	assert.Equal(t, 3, got.SessionMgmt.ConcurrentSessionLimit)
	assert.Nil(t, got.AnomalyAlerts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByTenantID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT config_json").WillReturnRows(sqlmock.NewRows([]string{"config_json"}))

	got, err := NewPostgresRepository(db).GetByTenantID(context.Background(), "tenant-x")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresGetByTenantID_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT config_json").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresRepository(db).GetByTenantID(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading tenant policy")
}

func TestPostgresUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO tenant_session_policies .+ ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepository(db).Upsert(context.Background(), "tenant-1", &domain.TenantPolicyConfig{
		AnomalyAlerts: &domain.AnomalyAlerts{AlertOnIPChange: true},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
