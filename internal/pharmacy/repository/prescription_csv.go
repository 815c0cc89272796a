package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// CSVPrescriptionRepository persists prescriptions. Medication lines are a
// JSON array in the medications_json column.
type CSVPrescriptionRepository struct {
	store *store.Store
}

// NewCSVPrescriptionRepository creates a CSV-backed prescription repository.
func NewCSVPrescriptionRepository(st *store.Store) *CSVPrescriptionRepository {
	return &CSVPrescriptionRepository{store: st}
}

func decodePrescription(row store.Row) Prescription {
	p := Prescription{
		PrescriptionID: row["prescription_id"],
		PatientID:      row["patient_id"],
		DoctorName:     row["doctor_name"],
		PharmacyID:     row["pharmacy_id"],
		CreatedAt:      decodeTime(row["created_at"]),
		QRPath:         row["qr_path"],
		Status:         row["status"],
	}
	// A corrupted medications_json cell reads as no medications.
	if raw := row["medications_json"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &p.Medications)
	}
	return p
}

func encodePrescription(p Prescription) store.Row {
	meds, err := json.Marshal(p.Medications)
	if err != nil || p.Medications == nil {
		meds = []byte("[]")
	}
	return store.Row{
		"prescription_id":  p.PrescriptionID,
		"patient_id":       p.PatientID,
		"doctor_name":      p.DoctorName,
		"pharmacy_id":      p.PharmacyID,
		"medications_json": string(meds),
		"created_at":       encodeTime(p.CreatedAt),
		"qr_path":          p.QRPath,
		"status":           p.Status,
	}
}

// List loads every prescription.
func (r *CSVPrescriptionRepository) List(_ context.Context) ([]Prescription, error) {
	rows, err := r.store.Load(store.TablePrescriptions)
	if err != nil {
		return nil, err
	}
	out := make([]Prescription, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodePrescription(row))
	}
	return out, nil
}

// Create appends a prescription, assigning an id if absent. An explicit id
// that is already taken fails with a conflict.
func (r *CSVPrescriptionRepository) Create(ctx context.Context, p *Prescription) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	if p.PrescriptionID == "" {
		p.PrescriptionID = uuid.New().String()
	} else {
		for i := range all {
			if all[i].PrescriptionID == p.PrescriptionID {
				return errors.Conflict("prescription id already exists")
			}
		}
	}
	if p.Status == "" {
		p.Status = PrescriptionCreated
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	all = append(all, *p)
	return r.saveAll(all)
}

// GetByID returns one prescription by id.
func (r *CSVPrescriptionRepository) GetByID(ctx context.Context, prescriptionID string) (*Prescription, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].PrescriptionID == prescriptionID {
			return &all[i], nil
		}
	}
	return nil, errors.NotFound("prescription")
}

// ListByMedication returns prescriptions containing the product/batch line.
func (r *CSVPrescriptionRepository) ListByMedication(ctx context.Context, productName, batch string) ([]Prescription, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Prescription
	for i := range all {
		if all[i].Contains(productName, batch) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// MarkDispensed transitions created -> dispensed exactly once.
func (r *CSVPrescriptionRepository) MarkDispensed(ctx context.Context, prescriptionID string) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].PrescriptionID != prescriptionID {
			continue
		}
		if all[i].Status == PrescriptionDispensed {
			return errors.Conflict("prescription already dispensed")
		}
		all[i].Status = PrescriptionDispensed
		return r.saveAll(all)
	}
	return errors.NotFound("prescription")
}

func (r *CSVPrescriptionRepository) saveAll(all []Prescription) error {
	rows := make([]store.Row, 0, len(all))
	for _, p := range all {
		rows = append(rows, encodePrescription(p))
	}
	return r.store.Save(store.TablePrescriptions, rows)
}
