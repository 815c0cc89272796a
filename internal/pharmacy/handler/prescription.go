package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/service"
	"github.com/lifetag/lifetag-backend/pkg/httputil"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// PrescriptionHandler handles prescription authoring and the dispense flow.
type PrescriptionHandler struct {
	prescriptionRepo repository.PrescriptionRepository
	dispense         *service.DispenseService
	logger           *logger.Logger
}

// NewPrescriptionHandler creates a new prescription handler.
func NewPrescriptionHandler(
	prescriptionRepo repository.PrescriptionRepository,
	dispense *service.DispenseService,
	log *logger.Logger,
) *PrescriptionHandler {
	return &PrescriptionHandler{
		prescriptionRepo: prescriptionRepo,
		dispense:         dispense,
		logger:           log,
	}
}

// CreatePrescriptionRequest is the authoring payload.
type CreatePrescriptionRequest struct {
	PrescriptionID string              `json:"prescription_id"`
	PatientID      string              `json:"patient_id" validate:"required"`
	DoctorName     string              `json:"doctor_name" validate:"required"`
	PharmacyID     string              `json:"pharmacy_id"`
	Medications    []MedicationRequest `json:"medications" validate:"required,min=1,dive"`
}

// MedicationRequest is one prescription line.
type MedicationRequest struct {
	ProductName string `json:"product_name" validate:"required"`
	Batch       string `json:"batch" validate:"required"`
	Qty         int    `json:"qty" validate:"required,gt=0"`
}

// Create authors a prescription.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	meds := make([]repository.Medication, 0, len(req.Medications))
	for _, m := range req.Medications {
		meds = append(meds, repository.Medication{
			ProductName: m.ProductName,
			Batch:       m.Batch,
			Qty:         m.Qty,
		})
	}

	p := &repository.Prescription{
		PrescriptionID: req.PrescriptionID,
		PatientID:      req.PatientID,
		DoctorName:     req.DoctorName,
		PharmacyID:     req.PharmacyID,
		Medications:    meds,
		Status:         repository.PrescriptionCreated,
	}
	if err := h.prescriptionRepo.Create(r.Context(), p); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// Get returns one prescription by id.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.prescriptionRepo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// List returns all prescriptions.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := h.prescriptionRepo.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, prescriptions)
}

// DispenseRequest identifies the prescription being handed over.
type DispenseRequest struct {
	PrescriptionID string `json:"prescription_id" validate:"required"`
	PharmacyID     string `json:"pharmacy_id"`
}

// Dispense hands over a prescription: stock decrement, sales recording, the
// one-shot status transition, and the patient expiry check.
func (h *PrescriptionHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req DispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispense.Dispense(r.Context(), req.PrescriptionID, req.PharmacyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
