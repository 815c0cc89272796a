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

func TestCSVStockRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVStockRepository(newTestStore(t))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	updated := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	want := []repository.StockEntry{
		{
			ProductName:  "Paracetamol",
			HSN:          "3004",
			MRP:          "25.50",
			Batch:        "B1",
			Exp:          "Jan-27",
			Qty:          10,
			Manufacturer: "Acme Pharma",
			Rate:         "20.00",
			GTIN:         "8901234567890",
			LastUpdate:   updated,
		},
		{ProductName: "Ibuprofen", Batch: "B2", Exp: "2027-03-01", Qty: 4},
	}
	require.NoError(t, repo.ReplaceAll(ctx, want))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, "Ibuprofen", got[1].ProductName)
	assert.True(t, got[1].LastUpdate.IsZero())
}

func TestCSVStockRepository_ReplaceAllOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVStockRepository(newTestStore(t))

	require.NoError(t, repo.ReplaceAll(ctx, []repository.StockEntry{
		{ProductName: "Paracetamol", Batch: "B1", Qty: 10},
		{ProductName: "Ibuprofen", Batch: "B2", Qty: 4},
	}))
	require.NoError(t, repo.ReplaceAll(ctx, []repository.StockEntry{
		{ProductName: "Aspirin", Batch: "B3", Qty: 7},
	}))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Aspirin", got[0].ProductName)
}

func TestCSVStockRepository_ToleratesBadQty(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	repo := repository.NewCSVStockRepository(st)

	require.NoError(t, repo.ReplaceAll(ctx, []repository.StockEntry{
		{ProductName: "Paracetamol", Batch: "B1", Qty: 10},
	}))

	// A hand-edited file with a mangled qty cell reads back as zero.
	rows, err := st.Load(store.TableStock)
	require.NoError(t, err)
	rows[0]["qty"] = "ten"
	require.NoError(t, st.Save(store.TableStock, rows))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Qty)
}
