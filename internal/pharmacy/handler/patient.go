package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/httputil"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// PatientHandler handles patient registration and lookup endpoints.
type PatientHandler struct {
	patientRepo      repository.PatientRepository
	prescriptionRepo repository.PrescriptionRepository
	alertRepo        repository.AlertRepository
	logger           *logger.Logger
}

// NewPatientHandler creates a new patient handler.
func NewPatientHandler(
	patientRepo repository.PatientRepository,
	prescriptionRepo repository.PrescriptionRepository,
	alertRepo repository.AlertRepository,
	log *logger.Logger,
) *PatientHandler {
	return &PatientHandler{
		patientRepo:      patientRepo,
		prescriptionRepo: prescriptionRepo,
		alertRepo:        alertRepo,
		logger:           log,
	}
}

// RegisterPatientRequest is the registration payload. Either an email or a
// contact number is needed so alerts can reach the patient.
type RegisterPatientRequest struct {
	Name    string `json:"name" validate:"required"`
	Age     string `json:"age"`
	Gender  string `json:"gender"`
	Contact string `json:"contact" validate:"required_without=Email"`
	Email   string `json:"email" validate:"required_without=Contact,omitempty,email"`
	Notes   string `json:"notes"`
}

// Register creates a patient record.
func (h *PatientHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterPatientRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	p := &repository.Patient{
		Name:         req.Name,
		Age:          req.Age,
		Gender:       req.Gender,
		Contact:      req.Contact,
		Email:        req.Email,
		Notes:        req.Notes,
		RegisteredAt: timeNow(),
	}
	if err := h.patientRepo.Create(r.Context(), p); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// List returns all patients.
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patientRepo.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, patients)
}

// Get returns one patient by id.
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.patientRepo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Alerts returns the active alerts touching any medication on the patient's
// prescriptions.
func (h *PatientHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.patientRepo.GetByID(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	prescriptions, err := h.prescriptionRepo.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	active, err := h.alertRepo.ListActive(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var matched []repository.Alert
	for _, alert := range active {
		for _, p := range prescriptions {
			if p.PatientID == id && p.Contains(alert.ProductName, alert.Batch) {
				matched = append(matched, alert)
				break
			}
		}
	}

	httputil.JSON(w, http.StatusOK, matched)
}
