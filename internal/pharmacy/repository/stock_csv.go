package repository

import (
	"context"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
)

// CSVStockRepository persists stock entries in the medicine_stock table.
type CSVStockRepository struct {
	store *store.Store
}

// NewCSVStockRepository creates a CSV-backed stock repository.
func NewCSVStockRepository(st *store.Store) *CSVStockRepository {
	return &CSVStockRepository{store: st}
}

// List loads every stock row.
func (r *CSVStockRepository) List(_ context.Context) ([]StockEntry, error) {
	rows, err := r.store.Load(store.TableStock)
	if err != nil {
		return nil, err
	}

	entries := make([]StockEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, StockEntry{
			ProductName:  row["product_name"],
			HSN:          row["hsn"],
			MRP:          row["mrp"],
			Batch:        row["batch"],
			Exp:          row["exp"],
			Qty:          atoiLoose(row["qty"]),
			Manufacturer: row["manufacturer"],
			Rate:         row["rate"],
			GTIN:         row["gtin"],
			LastUpdate:   decodeTime(row["last_update"]),
		})
	}
	return entries, nil
}

// ReplaceAll rewrites the whole stock table.
func (r *CSVStockRepository) ReplaceAll(_ context.Context, entries []StockEntry) error {
	rows := make([]store.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, store.Row{
			"product_name": e.ProductName,
			"hsn":          e.HSN,
			"mrp":          e.MRP,
			"batch":        e.Batch,
			"exp":          e.Exp,
			"qty":          itoa(e.Qty),
			"manufacturer": e.Manufacturer,
			"rate":         e.Rate,
			"gtin":         e.GTIN,
			"last_update":  encodeTime(e.LastUpdate),
		})
	}
	return r.store.Save(store.TableStock, rows)
}
