package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// CSVPatientRepository persists patient lookup records.
type CSVPatientRepository struct {
	store *store.Store
}

// NewCSVPatientRepository creates a CSV-backed patient repository.
func NewCSVPatientRepository(st *store.Store) *CSVPatientRepository {
	return &CSVPatientRepository{store: st}
}

// List loads every patient.
func (r *CSVPatientRepository) List(_ context.Context) ([]Patient, error) {
	rows, err := r.store.Load(store.TablePatients)
	if err != nil {
		return nil, err
	}
	out := make([]Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, Patient{
			PatientID:    row["patient_id"],
			Name:         row["name"],
			Age:          row["age"],
			Gender:       row["gender"],
			Contact:      row["contact"],
			Email:        row["email"],
			Notes:        row["notes"],
			RegisteredAt: decodeTime(row["registered_at"]),
		})
	}
	return out, nil
}

// Create appends a patient, assigning an id if absent.
func (r *CSVPatientRepository) Create(ctx context.Context, p *Patient) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	if p.PatientID == "" {
		p.PatientID = uuid.New().String()
	}
	all = append(all, *p)

	rows := make([]store.Row, 0, len(all))
	for _, pt := range all {
		rows = append(rows, store.Row{
			"patient_id":    pt.PatientID,
			"name":          pt.Name,
			"age":           pt.Age,
			"gender":        pt.Gender,
			"contact":       pt.Contact,
			"email":         pt.Email,
			"notes":         pt.Notes,
			"registered_at": encodeTime(pt.RegisteredAt),
		})
	}
	return r.store.Save(store.TablePatients, rows)
}

// GetByID returns one patient by id.
func (r *CSVPatientRepository) GetByID(ctx context.Context, patientID string) (*Patient, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].PatientID == patientID {
			return &all[i], nil
		}
	}
	return nil, errors.NotFound("patient")
}
