package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
)

func TestAlertEngine_SweepClassification(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// Reference date is 2025-06-01.
	_, err := env.ledger.Upsert(ctx, stockEntry("Expired", "E1", "Jan-24", 50))
	require.NoError(t, err)
	_, err = env.ledger.Upsert(ctx, stockEntry("Closing", "C1", "2025-06-10", 50))
	require.NoError(t, err)
	_, err = env.ledger.Upsert(ctx, stockEntry("Scarce", "S1", "2027-01-01", 2))
	require.NoError(t, err)
	_, err = env.ledger.Upsert(ctx, stockEntry("Healthy", "H1", "2027-01-01", 100))
	require.NoError(t, err)

	created, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 3)

	byProduct := map[string]repository.Alert{}
	for _, a := range created {
		byProduct[a.ProductName] = a
	}

	assert.Equal(t, repository.AlertExpired, byProduct["Expired"].AlertType)
	require.NotNil(t, byProduct["Expired"].DaysToExpiry)
	assert.Negative(t, *byProduct["Expired"].DaysToExpiry)

	assert.Equal(t, repository.AlertExpiringSoon, byProduct["Closing"].AlertType)
	assert.Equal(t, 9, *byProduct["Closing"].DaysToExpiry)

	assert.Equal(t, repository.AlertLowStock, byProduct["Scarce"].AlertType)
}

func TestAlertEngine_ExpiryPrecedesLowStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// Both expired and below the stock threshold: only the expiry alert fires.
	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)

	created, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, repository.AlertExpired, created[0].AlertType)
}

func TestAlertEngine_SweepIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)

	first, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestAlertEngine_SweepSkipsUnusableRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.stockRepo.ReplaceAll(ctx, []repository.StockEntry{
		stockEntry("", "B1", "Jan-24", 3),          // blank product
		stockEntry("NoBatch", "", "Jan-24", 3),     // blank batch
		stockEntry("BadDate", "B2", "soonish", 3),  // unparseable expiry
		stockEntry("NoExpiry", "B3", "", 3),        // blank expiry
		stockEntry("Good", "B4", "2025-01-01", 50), // the only alertable row
	}))

	created, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Good", created[0].ProductName)
}

func TestAlertEngine_UnresolvedUniquenessInvariant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := env.engine.Sweep(ctx, 15, 5)
		require.NoError(t, err)
	}

	// Same key through the dispense-time primitive changes nothing either.
	days := -120
	_, isNew, err := env.engine.CreateOrSkip(ctx, "PARACETAMOL", "b1", "Jan-24", &days, repository.AlertExpired)
	require.NoError(t, err)
	assert.False(t, isNew)

	active, err := env.engine.ListActive(ctx)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, a := range active {
		key := strings.ToLower(a.ProductName) + "|" + strings.ToLower(a.Batch) + "|" + a.AlertType
		assert.False(t, seen[key], "duplicate unresolved alert for %s", key)
		seen[key] = true
	}
}

func TestAlertEngine_ResolutionMonotonic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	created, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 1)
	id := created[0].AlertID

	ok, err := env.engine.Resolve(ctx, id, "patient")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.engine.Resolve(ctx, id, "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	alert, err := env.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "patient", alert.ResolvedBy)
}

func TestAlertEngine_ResolvedKeyCanAlertAgain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	created, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 1)

	_, err = env.engine.Resolve(ctx, created[0].AlertID, "chemist")
	require.NoError(t, err)

	// The condition still holds on the next sweep, so a fresh alert is raised.
	again, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.NotEqual(t, created[0].AlertID, again[0].AlertID)
}

func TestAlertEngine_EndToEndExpiredScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)

	created, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, repository.AlertExpired, created[0].AlertType)
	require.NotNil(t, created[0].DaysToExpiry)
	assert.Negative(t, *created[0].DaysToExpiry)

	second, err := env.engine.Sweep(ctx, 15, 5)
	require.NoError(t, err)
	assert.Empty(t, second)

	ok, err := env.engine.Resolve(ctx, created[0].AlertID, "chemist")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := env.engine.ResolveByMatch(ctx, "Paracetamol", "B1", "chemist")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
