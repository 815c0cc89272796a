package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
)

// CSVSaleRepository records dispensed medication lines.
type CSVSaleRepository struct {
	store *store.Store
}

// NewCSVSaleRepository creates a CSV-backed sale repository.
func NewCSVSaleRepository(st *store.Store) *CSVSaleRepository {
	return &CSVSaleRepository{store: st}
}

func (r *CSVSaleRepository) list(ctx context.Context) ([]Sale, error) {
	rows, err := r.store.Load(store.TableSales)
	if err != nil {
		return nil, err
	}
	out := make([]Sale, 0, len(rows))
	for _, row := range rows {
		out = append(out, Sale{
			SaleID:         row["sale_id"],
			PrescriptionID: row["prescription_id"],
			ProductName:    row["product_name"],
			Batch:          row["batch"],
			Qty:            atoiLoose(row["qty"]),
			SoldAt:         decodeTime(row["sold_at"]),
			PharmacyID:     row["pharmacy_id"],
		})
	}
	return out, nil
}

// Create appends a sale record, assigning an id if absent.
func (r *CSVSaleRepository) Create(ctx context.Context, s *Sale) error {
	all, err := r.list(ctx)
	if err != nil {
		return err
	}
	if s.SaleID == "" {
		s.SaleID = uuid.New().String()
	}
	all = append(all, *s)

	rows := make([]store.Row, 0, len(all))
	for _, sale := range all {
		rows = append(rows, store.Row{
			"sale_id":         sale.SaleID,
			"prescription_id": sale.PrescriptionID,
			"product_name":    sale.ProductName,
			"batch":           sale.Batch,
			"qty":             itoa(sale.Qty),
			"sold_at":         encodeTime(sale.SoldAt),
			"pharmacy_id":     sale.PharmacyID,
		})
	}
	return r.store.Save(store.TableSales, rows)
}

// ListByPrescription returns the sales recorded for one prescription.
func (r *CSVSaleRepository) ListByPrescription(ctx context.Context, prescriptionID string) ([]Sale, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	var out []Sale
	for i := range all {
		if all[i].PrescriptionID == prescriptionID {
			out = append(out, all[i])
		}
	}
	return out, nil
}
