package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/pkg/database"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// PostgresPrescriptionRepository persists prescriptions in PostgreSQL with
// the medication lines in a jsonb column.
type PostgresPrescriptionRepository struct {
	db *database.DB
}

// NewPostgresPrescriptionRepository creates a Postgres-backed prescription repository.
func NewPostgresPrescriptionRepository(db *database.DB) *PostgresPrescriptionRepository {
	return &PostgresPrescriptionRepository{db: db}
}

type prescriptionRow struct {
	PrescriptionID  string    `db:"prescription_id"`
	PatientID       string    `db:"patient_id"`
	DoctorName      string    `db:"doctor_name"`
	PharmacyID      string    `db:"pharmacy_id"`
	MedicationsJSON string    `db:"medications_json"`
	CreatedAt       time.Time `db:"created_at"`
	QRPath          string    `db:"qr_path"`
	Status          string    `db:"status"`
}

func (row *prescriptionRow) toModel() Prescription {
	p := Prescription{
		PrescriptionID: row.PrescriptionID,
		PatientID:      row.PatientID,
		DoctorName:     row.DoctorName,
		PharmacyID:     row.PharmacyID,
		CreatedAt:      row.CreatedAt,
		QRPath:         row.QRPath,
		Status:         row.Status,
	}
	if row.MedicationsJSON != "" {
		_ = json.Unmarshal([]byte(row.MedicationsJSON), &p.Medications)
	}
	return p
}

// Create inserts a prescription; a reused explicit id maps to a conflict.
func (r *PostgresPrescriptionRepository) Create(ctx context.Context, p *Prescription) error {
	if p.PrescriptionID == "" {
		p.PrescriptionID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = PrescriptionCreated
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	meds, err := json.Marshal(p.Medications)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO prescriptions (
			prescription_id, patient_id, doctor_name, pharmacy_id,
			medications_json, created_at, qr_path, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		p.PrescriptionID, p.PatientID, p.DoctorName, p.PharmacyID,
		string(meds), p.CreatedAt, p.QRPath, p.Status,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID returns one prescription by id.
func (r *PostgresPrescriptionRepository) GetByID(ctx context.Context, prescriptionID string) (*Prescription, error) {
	var row prescriptionRow
	query := `SELECT * FROM prescriptions WHERE prescription_id = $1`
	if err := r.db.GetContext(ctx, &row, query, prescriptionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("prescription")
		}
		return nil, err
	}
	p := row.toModel()
	return &p, nil
}

// List loads every prescription.
func (r *PostgresPrescriptionRepository) List(ctx context.Context) ([]Prescription, error) {
	var rows []prescriptionRow
	query := `SELECT * FROM prescriptions ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	out := make([]Prescription, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// ListByMedication filters on the jsonb medication lines. The product and
// batch comparison is case-insensitive, matching the CSV implementation.
func (r *PostgresPrescriptionRepository) ListByMedication(ctx context.Context, productName, batch string) ([]Prescription, error) {
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
func (r *PostgresPrescriptionRepository) MarkDispensed(ctx context.Context, prescriptionID string) error {
	query := `
		UPDATE prescriptions SET status = $2
		WHERE prescription_id = $1 AND status <> $2
	`
	result, err := r.db.ExecContext(ctx, query, prescriptionID, PrescriptionDispensed)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	// Distinguish unknown id from an already-dispensed prescription.
	if _, err := r.GetByID(ctx, prescriptionID); err != nil {
		return err
	}
	return errors.Conflict("prescription already dispensed")
}
