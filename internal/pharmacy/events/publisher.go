// Package events publishes pharmacy domain events to RabbitMQ. All publish
// methods are nil-safe so the rest of the service can fire events without
// caring whether a broker is configured.
package events

import (
	"context"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/logger"
	"github.com/lifetag/lifetag-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes stock, alert, and prescription events.
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a publisher bound to the pharmacy events exchange.
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishStockUpdated publishes a stock updated event after a merge or append.
func (p *PharmacyEventPublisher) PublishStockUpdated(ctx context.Context, entry *repository.StockEntry, merged bool) {
	if p == nil {
		return
	}

	data := messaging.StockUpdatedEvent{
		ProductName: entry.ProductName,
		Batch:       entry.Batch,
		Quantity:    entry.Qty,
		Merged:      merged,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockUpdated, data); err != nil {
		p.logger.Error().Err(err).Str("product_name", entry.ProductName).Msg("failed to publish stock updated event")
	}
}

// PublishStockRemoved publishes a stock removed event.
func (p *PharmacyEventPublisher) PublishStockRemoved(ctx context.Context, productName, batch string, rowsRemoved, alertsResolved int) {
	if p == nil {
		return
	}

	data := messaging.StockRemovedEvent{
		ProductName:    productName,
		Batch:          batch,
		RowsRemoved:    rowsRemoved,
		AlertsResolved: alertsResolved,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockRemoved, data); err != nil {
		p.logger.Error().Err(err).Str("product_name", productName).Msg("failed to publish stock removed event")
	}
}

// PublishAlertCreated publishes an alert created event.
func (p *PharmacyEventPublisher) PublishAlertCreated(ctx context.Context, alert *repository.Alert) {
	if p == nil {
		return
	}

	data := messaging.AlertCreatedEvent{
		AlertID:      alert.AlertID,
		ProductName:  alert.ProductName,
		Batch:        alert.Batch,
		AlertType:    alert.AlertType,
		DaysToExpiry: alert.DaysToExpiry,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertCreated, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.AlertID).Msg("failed to publish alert created event")
	}
}

// PublishAlertResolved publishes an alert resolved event.
func (p *PharmacyEventPublisher) PublishAlertResolved(ctx context.Context, alertID, resolvedBy string) {
	if p == nil {
		return
	}

	data := messaging.AlertResolvedEvent{
		AlertID:    alertID,
		ResolvedBy: resolvedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertResolved, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alertID).Msg("failed to publish alert resolved event")
	}
}

// PublishPrescriptionDispensed publishes a prescription dispensed event.
func (p *PharmacyEventPublisher) PublishPrescriptionDispensed(ctx context.Context, prescriptionID, patientID string, applied, skipped int) {
	if p == nil {
		return
	}

	data := messaging.PrescriptionDispensedEvent{
		PrescriptionID: prescriptionID,
		PatientID:      patientID,
		ItemsApplied:   applied,
		ItemsSkipped:   skipped,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPrescriptionDispensed, data); err != nil {
		p.logger.Error().Err(err).Str("prescription_id", prescriptionID).Msg("failed to publish prescription dispensed event")
	}
}
