package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/database"
	"github.com/lifetag/lifetag-backend/pkg/logger"
	"github.com/lifetag/lifetag-backend/pkg/testutil"
)

func newPostgresAlertRepo(t *testing.T) (*repository.PostgresAlertRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	db := database.NewFromSqlx(mockDB.DB, logger.Nop())
	return repository.NewPostgresAlertRepository(db), mockDB
}

func TestPostgresAlertRepository_Create_AssignsID(t *testing.T) {
	repo, mockDB := newPostgresAlertRepo(t)

	mockDB.ExpectExec("INSERT INTO alerts").
		WithArgs(
			testutil.AnyUUID{}, "Paracetamol", "B1", "Jan-24",
			sqlmock.AnyArg(), repository.AlertExpired, testutil.AnyTime{},
			nil, false, "", nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	alert := &repository.Alert{
		ProductName: "Paracetamol",
		Batch:       "B1",
		Exp:         "Jan-24",
		AlertType:   repository.AlertExpired,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), alert))
	assert.NotEmpty(t, alert.AlertID)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresAlertRepository_ExistsUnresolved(t *testing.T) {
	repo, mockDB := newPostgresAlertRepo(t)

	mockDB.ExpectQuery("SELECT EXISTS").
		WithArgs("Paracetamol", "B1", repository.AlertExpired).
		WillReturnRows(testutil.MockRows("exists").AddRow(true))

	exists, err := repo.ExistsUnresolved(context.Background(), "Paracetamol", "B1", repository.AlertExpired)
	require.NoError(t, err)
	assert.True(t, exists)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresAlertRepository_Resolve_Monotonic(t *testing.T) {
	repo, mockDB := newPostgresAlertRepo(t)
	at := time.Now()

	mockDB.ExpectExec("UPDATE alerts").
		WithArgs("a1", "patient", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Resolve(context.Background(), "a1", "patient", at)
	require.NoError(t, err)
	assert.True(t, ok)

	// An already-resolved alert matches no rows; the call reports false.
	mockDB.ExpectExec("UPDATE alerts").
		WithArgs("a1", "admin", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.Resolve(context.Background(), "a1", "admin", at)
	require.NoError(t, err)
	assert.False(t, ok)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresAlertRepository_ResolveByMatch(t *testing.T) {
	repo, mockDB := newPostgresAlertRepo(t)
	at := time.Now()

	mockDB.ExpectExec("UPDATE alerts").
		WithArgs("Paracetamol", "B1", "chemist", at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.ResolveByMatch(context.Background(), "Paracetamol", "B1", "chemist", at)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresAlertRepository_TouchLastSent_Unknown(t *testing.T) {
	repo, mockDB := newPostgresAlertRepo(t)
	at := time.Now()

	mockDB.ExpectExec("UPDATE alerts SET last_sent_at").
		WithArgs("missing", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TouchLastSent(context.Background(), "missing", at)
	require.Error(t, err)
	mockDB.ExpectationsWereMet(t)
}
