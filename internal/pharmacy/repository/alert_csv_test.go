package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	return st
}

func createTestAlert(t *testing.T, repo *repository.CSVAlertRepository, product, batch, alertType string) *repository.Alert {
	t.Helper()
	alert := &repository.Alert{
		ProductName: product,
		Batch:       batch,
		Exp:         "Jan-24",
		AlertType:   alertType,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.Create(context.Background(), alert))
	require.NotEmpty(t, alert.AlertID)
	return alert
}

func TestCSVAlertRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))

	days := -120
	alert := &repository.Alert{
		ProductName:  "Paracetamol",
		Batch:        "B1",
		Exp:          "Jan-24",
		DaysToExpiry: &days,
		AlertType:    repository.AlertExpired,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.Create(ctx, alert))

	got, err := repo.GetByID(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol", got.ProductName)
	require.NotNil(t, got.DaysToExpiry)
	assert.Equal(t, -120, *got.DaysToExpiry)
	assert.False(t, got.Resolved)
	assert.Nil(t, got.LastSentAt)
}

func TestCSVAlertRepository_ExistsUnresolved_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))
	createTestAlert(t, repo, "Paracetamol", "B1", repository.AlertExpired)

	exists, err := repo.ExistsUnresolved(ctx, "  PARACETAMOL ", "b1", repository.AlertExpired)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsUnresolved(ctx, "Paracetamol", "B1", repository.AlertLowStock)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCSVAlertRepository_ResolveMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))
	alert := createTestAlert(t, repo, "Paracetamol", "B1", repository.AlertExpired)

	now := time.Now().UTC()
	ok, err := repo.Resolve(ctx, alert.AlertID, "patient", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second resolution is a no-op and the first resolver is kept.
	ok, err = repo.Resolve(ctx, alert.AlertID, "admin", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, "patient", got.ResolvedBy)
}

func TestCSVAlertRepository_ResolveUnknownID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))

	ok, err := repo.Resolve(ctx, "no-such-id", "chemist", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSVAlertRepository_ResolveByMatch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))
	createTestAlert(t, repo, "Paracetamol", "B1", repository.AlertExpired)
	createTestAlert(t, repo, "Paracetamol", "B1", repository.AlertLowStock)
	other := createTestAlert(t, repo, "Ibuprofen", "B2", repository.AlertExpired)

	count, err := repo.ResolveByMatch(ctx, "paracetamol", "b1", "chemist", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Already resolved rows are not touched again.
	count, err = repo.ResolveByMatch(ctx, "Paracetamol", "B1", "chemist", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	got, err := repo.GetByID(ctx, other.AlertID)
	require.NoError(t, err)
	assert.False(t, got.Resolved)
}

func TestCSVAlertRepository_TouchLastSent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))
	alert := createTestAlert(t, repo, "Paracetamol", "B1", repository.AlertExpired)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.TouchLastSent(ctx, alert.AlertID, at))

	got, err := repo.GetByID(ctx, alert.AlertID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSentAt)
	assert.Equal(t, at, got.LastSentAt.UTC())
	assert.False(t, got.Resolved)
}

func TestCSVAlertRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVAlertRepository(newTestStore(t))
	a1 := createTestAlert(t, repo, "Paracetamol", "B1", repository.AlertExpired)
	a2 := createTestAlert(t, repo, "Ibuprofen", "B2", repository.AlertLowStock)

	_, err := repo.Resolve(ctx, a1.AlertID, "chemist", time.Now())
	require.NoError(t, err)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a2.AlertID, active[0].AlertID)
}
