package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/pkg/database"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// PostgresPatientRepository persists patient records in PostgreSQL.
type PostgresPatientRepository struct {
	db *database.DB
}

// NewPostgresPatientRepository creates a Postgres-backed patient repository.
func NewPostgresPatientRepository(db *database.DB) *PostgresPatientRepository {
	return &PostgresPatientRepository{db: db}
}

// Create inserts a patient, assigning an id if absent.
func (r *PostgresPatientRepository) Create(ctx context.Context, p *Patient) error {
	if p.PatientID == "" {
		p.PatientID = uuid.New().String()
	}

	query := `
		INSERT INTO patients (
			patient_id, name, age, gender, contact, email, notes, registered_at
		) VALUES (:patient_id, :name, :age, :gender, :contact, :email, :notes, :registered_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID returns one patient by id.
func (r *PostgresPatientRepository) GetByID(ctx context.Context, patientID string) (*Patient, error) {
	var p Patient
	query := `SELECT * FROM patients WHERE patient_id = $1`
	if err := r.db.GetContext(ctx, &p, query, patientID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("patient")
		}
		return nil, err
	}
	return &p, nil
}

// List loads every patient.
func (r *PostgresPatientRepository) List(ctx context.Context) ([]Patient, error) {
	var patients []Patient
	query := `SELECT * FROM patients ORDER BY registered_at`
	if err := r.db.SelectContext(ctx, &patients, query); err != nil {
		return nil, err
	}
	return patients, nil
}
