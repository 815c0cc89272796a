package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/pkg/database"
)

// PostgresSaleRepository persists sales in PostgreSQL.
type PostgresSaleRepository struct {
	db *database.DB
}

// NewPostgresSaleRepository creates a Postgres-backed sale repository.
func NewPostgresSaleRepository(db *database.DB) *PostgresSaleRepository {
	return &PostgresSaleRepository{db: db}
}

// Create records a dispensed medication line.
func (r *PostgresSaleRepository) Create(ctx context.Context, s *Sale) error {
	if s.SaleID == "" {
		s.SaleID = uuid.New().String()
	}

	query := `
		INSERT INTO sales (
			sale_id, prescription_id, product_name, batch, qty, sold_at, pharmacy_id
		) VALUES (:sale_id, :prescription_id, :product_name, :batch, :qty, :sold_at, :pharmacy_id)
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByPrescription returns the sales recorded against one prescription.
func (r *PostgresSaleRepository) ListByPrescription(ctx context.Context, prescriptionID string) ([]Sale, error) {
	var sales []Sale
	query := `SELECT * FROM sales WHERE prescription_id = $1 ORDER BY sold_at`
	if err := r.db.SelectContext(ctx, &sales, query, prescriptionID); err != nil {
		return nil, err
	}
	return sales, nil
}
