package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

func createTestPrescription(t *testing.T, repo *repository.CSVPrescriptionRepository, patientID string, meds ...repository.Medication) *repository.Prescription {
	t.Helper()
	p := &repository.Prescription{
		PatientID:   patientID,
		DoctorName:  "Dr. Rao",
		Medications: meds,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestCSVPrescriptionRepository_CreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVPrescriptionRepository(newTestStore(t))

	p := createTestPrescription(t, repo, "p1",
		repository.Medication{ProductName: "Paracetamol", Batch: "B1", Qty: 2},
		repository.Medication{ProductName: "Ibuprofen", Batch: "B2", Qty: 1},
	)

	got, err := repo.GetByID(ctx, p.PrescriptionID)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PatientID)
	assert.Equal(t, repository.PrescriptionCreated, got.Status)
	require.Len(t, got.Medications, 2)
	assert.Equal(t, "Paracetamol", got.Medications[0].ProductName)
	assert.Equal(t, 2, got.Medications[0].Qty)
}

func TestCSVPrescriptionRepository_CreateStampsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVPrescriptionRepository(newTestStore(t))

	before := time.Now()
	p := createTestPrescription(t, repo, "p1", repository.Medication{ProductName: "Paracetamol", Batch: "B1", Qty: 1})
	assert.False(t, p.CreatedAt.Before(before))

	got, err := repo.GetByID(ctx, p.PrescriptionID)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())

	// An explicit timestamp is kept as-is.
	explicit := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	p2 := &repository.Prescription{PatientID: "p2", CreatedAt: explicit}
	require.NoError(t, repo.Create(ctx, p2))
	got2, err := repo.GetByID(ctx, p2.PrescriptionID)
	require.NoError(t, err)
	assert.True(t, got2.CreatedAt.Equal(explicit))
}

func TestCSVPrescriptionRepository_DuplicateIDConflict(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVPrescriptionRepository(newTestStore(t))

	p := &repository.Prescription{PrescriptionID: "rx-1", PatientID: "p1"}
	require.NoError(t, repo.Create(ctx, p))

	err := repo.Create(ctx, &repository.Prescription{PrescriptionID: "rx-1", PatientID: "p2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestCSVPrescriptionRepository_MarkDispensedOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVPrescriptionRepository(newTestStore(t))
	p := createTestPrescription(t, repo, "p1", repository.Medication{ProductName: "Paracetamol", Batch: "B1", Qty: 1})

	require.NoError(t, repo.MarkDispensed(ctx, p.PrescriptionID))

	err := repo.MarkDispensed(ctx, p.PrescriptionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	err = repo.MarkDispensed(ctx, "no-such-rx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCSVPrescriptionRepository_ListByMedication(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCSVPrescriptionRepository(newTestStore(t))
	p1 := createTestPrescription(t, repo, "p1", repository.Medication{ProductName: "Paracetamol", Batch: "B1", Qty: 1})
	createTestPrescription(t, repo, "p2", repository.Medication{ProductName: "Ibuprofen", Batch: "B2", Qty: 1})

	// Lookup is case-insensitive on both fields.
	found, err := repo.ListByMedication(ctx, "PARACETAMOL", "b1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p1.PrescriptionID, found[0].PrescriptionID)
}
