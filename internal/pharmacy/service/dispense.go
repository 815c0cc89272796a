package service

import (
	"context"
	"time"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/events"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/dateparse"
	"github.com/lifetag/lifetag-backend/pkg/errors"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// DispenseResult reports the outcome of dispensing one prescription.
type DispenseResult struct {
	PrescriptionID string       `json:"prescription_id"`
	Applied        int          `json:"applied"`
	Skipped        []SkippedRow `json:"skipped,omitempty"`
	AlertsSent     int          `json:"alerts_sent"`
}

// DispenseService walks a prescription through the counter: decrement stock,
// record sales, flip the prescription to dispensed exactly once, then warn
// the patient about any soon-to-expire medication they just received.
type DispenseService struct {
	ledger              *LedgerService
	engine              *AlertEngine
	dispatcher          *Dispatcher
	prescriptionRepo    repository.PrescriptionRepository
	patientRepo         repository.PatientRepository
	saleRepo            repository.SaleRepository
	publisher           *events.PharmacyEventPublisher
	logger              *logger.Logger
	expiryThresholdDays int

	now func() time.Time
}

// NewDispenseService creates the dispense service.
func NewDispenseService(
	ledger *LedgerService,
	engine *AlertEngine,
	dispatcher *Dispatcher,
	prescriptionRepo repository.PrescriptionRepository,
	patientRepo repository.PatientRepository,
	saleRepo repository.SaleRepository,
	publisher *events.PharmacyEventPublisher,
	expiryThresholdDays int,
	log *logger.Logger,
) *DispenseService {
	return &DispenseService{
		ledger:              ledger,
		engine:              engine,
		dispatcher:          dispatcher,
		prescriptionRepo:    prescriptionRepo,
		patientRepo:         patientRepo,
		saleRepo:            saleRepo,
		publisher:           publisher,
		logger:              log,
		expiryThresholdDays: expiryThresholdDays,
		now:                 time.Now,
	}
}

// SetClock overrides the service's clock. Used in tests.
func (s *DispenseService) SetClock(now func() time.Time) {
	s.now = now
}

// Dispense hands over one prescription. Each medication line is decremented
// from stock and recorded as a sale; lines that cannot be fulfilled are
// skipped with a reason rather than aborting the rest. A prescription can be
// dispensed once: a repeat attempt fails with a conflict.
func (s *DispenseService) Dispense(ctx context.Context, prescriptionID, pharmacyID string) (*DispenseResult, error) {
	p, err := s.prescriptionRepo.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p.Status == repository.PrescriptionDispensed {
		return nil, errors.Conflict("prescription already dispensed")
	}

	result := &DispenseResult{PrescriptionID: prescriptionID}
	for _, med := range p.Medications {
		if err := s.ledger.Decrement(ctx, med.ProductName, med.Batch, med.Qty); err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{
				ProductName: med.ProductName,
				Batch:       med.Batch,
				Reason:      err.Error(),
			})
			continue
		}

		sale := &repository.Sale{
			PrescriptionID: prescriptionID,
			ProductName:    med.ProductName,
			Batch:          med.Batch,
			Qty:            med.Qty,
			SoldAt:         s.now(),
			PharmacyID:     pharmacyID,
		}
		if err := s.saleRepo.Create(ctx, sale); err != nil {
			s.logger.Error().Err(err).
				Str("prescription_id", prescriptionID).
				Str("product_name", med.ProductName).
				Msg("failed to record sale")
		}
		result.Applied++
	}

	if err := s.prescriptionRepo.MarkDispensed(ctx, prescriptionID); err != nil {
		return nil, err
	}

	s.publisher.PublishPrescriptionDispensed(ctx, prescriptionID, p.PatientID, result.Applied, len(result.Skipped))

	sent, err := s.CheckAndAlert(ctx, prescriptionID)
	if err != nil {
		s.logger.Error().Err(err).Str("prescription_id", prescriptionID).Msg("dispense-time expiry check failed")
	}
	result.AlertsSent = len(sent)

	s.logger.Info().
		Str("prescription_id", prescriptionID).
		Int("applied", result.Applied).
		Int("skipped", len(result.Skipped)).
		Msg("prescription dispensed")
	return result, nil
}

// CheckAndAlert warns the prescription's patient about medications on it that
// are expired or expiring within the threshold. Alerts go through the shared
// dedup-and-insert primitive; the notification here is patient-only and is
// sent inline rather than fanned out. Returns the alerts actually emailed.
func (s *DispenseService) CheckAndAlert(ctx context.Context, prescriptionID string) ([]repository.Alert, error) {
	p, err := s.prescriptionRepo.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	patient, err := s.patientRepo.GetByID(ctx, p.PatientID)
	if err != nil {
		return nil, err
	}

	entries, err := s.ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var sent []repository.Alert
	for _, med := range p.Medications {
		entry := findStock(entries, med.ProductName, med.Batch)
		if entry == nil {
			continue
		}

		expiry, err := dateparse.Parse(entry.Exp)
		if err != nil {
			continue
		}
		daysLeft := dateparse.DaysUntil(expiry, now)
		if daysLeft > s.expiryThresholdDays {
			continue
		}

		alertType := repository.AlertExpiringSoon
		if daysLeft < 0 {
			alertType = repository.AlertExpired
		}

		alert, isNew, err := s.engine.CreateOrSkip(ctx, entry.ProductName, entry.Batch, entry.Exp, &daysLeft, alertType)
		if err != nil {
			s.logger.Error().Err(err).
				Str("product_name", entry.ProductName).
				Str("batch", entry.Batch).
				Msg("dispense check: failed to create alert")
			continue
		}
		// The alert row is deduped, the patient warning is not: the patient
		// holding the medicine is told even when a sweep already raised the
		// alert, unless it was already mailed within the renotify interval.
		if !isNew && alert.LastSentAt != nil && now.Sub(*alert.LastSentAt) < s.dispatcher.cfg.RenotifyInterval {
			continue
		}

		addr := patient.Address()
		if addr == "" {
			continue
		}

		msg := Message{
			To:       addr,
			Subject:  "Medication expiry notice: " + entry.ProductName,
			TextBody: s.dispatcher.textBody(alert, "patient", patient.Name),
			HTMLBody: s.dispatcher.htmlBody(alert, "patient", patient.Name),
			Role:     "patient",
		}
		if err := s.dispatcher.notifier.Send(msg.To, msg.Subject, msg.TextBody, msg.HTMLBody); err != nil {
			s.logger.Error().Err(err).
				Str("alert_id", alert.AlertID).
				Str("to", msg.To).
				Msg("dispense check: notification send failed")
			continue
		}

		if err := s.engine.TouchLastSent(ctx, alert.AlertID); err != nil {
			s.logger.Error().Err(err).Str("alert_id", alert.AlertID).Msg("failed to stamp last_sent_at")
		}
		sent = append(sent, *alert)
	}

	return sent, nil
}

// findStock returns the stock entry matching the product and batch,
// case-insensitively, or nil.
func findStock(entries []repository.StockEntry, productName, batch string) *repository.StockEntry {
	for i := range entries {
		if fold(entries[i].ProductName) == fold(productName) && fold(entries[i].Batch) == fold(batch) {
			return &entries[i]
		}
	}
	return nil
}
