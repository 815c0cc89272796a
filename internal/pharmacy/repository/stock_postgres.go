package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lifetag/lifetag-backend/pkg/database"
)

// PostgresStockRepository persists stock entries in PostgreSQL while keeping
// the whole-table load/save contract of the CSV store: ReplaceAll swaps the
// table contents in one transaction.
type PostgresStockRepository struct {
	db *database.DB
}

// NewPostgresStockRepository creates a Postgres-backed stock repository.
func NewPostgresStockRepository(db *database.DB) *PostgresStockRepository {
	return &PostgresStockRepository{db: db}
}

// List loads every stock row.
func (r *PostgresStockRepository) List(ctx context.Context) ([]StockEntry, error) {
	var entries []StockEntry
	query := `
		SELECT product_name, hsn, mrp, batch, exp, qty, manufacturer, rate, gtin, last_update
		FROM medicine_stock
		ORDER BY last_update
	`
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReplaceAll swaps the table contents atomically.
func (r *PostgresStockRepository) ReplaceAll(ctx context.Context, entries []StockEntry) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM medicine_stock`); err != nil {
			return err
		}

		query := `
			INSERT INTO medicine_stock (
				product_name, hsn, mrp, batch, exp, qty, manufacturer, rate, gtin, last_update
			) VALUES (
				:product_name, :hsn, :mrp, :batch, :exp, :qty, :manufacturer, :rate, :gtin, :last_update
			)
		`
		for i := range entries {
			if _, err := tx.NamedExecContext(ctx, query, &entries[i]); err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}
		}
		return nil
	})
}
