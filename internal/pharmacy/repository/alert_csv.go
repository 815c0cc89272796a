package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// CSVAlertRepository persists alerts in the alerts table.
type CSVAlertRepository struct {
	store *store.Store
}

// NewCSVAlertRepository creates a CSV-backed alert repository.
func NewCSVAlertRepository(st *store.Store) *CSVAlertRepository {
	return &CSVAlertRepository{store: st}
}

func decodeAlert(row store.Row) Alert {
	return Alert{
		AlertID:      row["alert_id"],
		ProductName:  row["product_name"],
		Batch:        row["batch"],
		Exp:          row["exp"],
		DaysToExpiry: decodeIntPtr(row["days_to_expiry"]),
		AlertType:    row["alert_type"],
		CreatedAt:    decodeTime(row["created_at"]),
		LastSentAt:   decodeTimePtr(row["last_sent_at"]),
		Resolved:     decodeBool(row["resolved"]),
		ResolvedBy:   row["resolved_by"],
		ResolvedAt:   decodeTimePtr(row["resolved_at"]),
	}
}

func encodeAlert(a Alert) store.Row {
	return store.Row{
		"alert_id":       a.AlertID,
		"product_name":   a.ProductName,
		"batch":          a.Batch,
		"exp":            a.Exp,
		"days_to_expiry": encodeIntPtr(a.DaysToExpiry),
		"alert_type":     a.AlertType,
		"created_at":     encodeTime(a.CreatedAt),
		"last_sent_at":   encodeTimePtr(a.LastSentAt),
		"resolved":       encodeBool(a.Resolved),
		"resolved_by":    a.ResolvedBy,
		"resolved_at":    encodeTimePtr(a.ResolvedAt),
	}
}

// List loads every alert row.
func (r *CSVAlertRepository) List(_ context.Context) ([]Alert, error) {
	rows, err := r.store.Load(store.TableAlerts)
	if err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, decodeAlert(row))
	}
	return alerts, nil
}

// ListActive returns unresolved alerts only.
func (r *CSVAlertRepository) ListActive(ctx context.Context) ([]Alert, error) {
	alerts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	active := alerts[:0]
	for _, a := range alerts {
		if !a.Resolved {
			active = append(active, a)
		}
	}
	return active, nil
}

// GetByID returns one alert by id.
func (r *CSVAlertRepository) GetByID(ctx context.Context, alertID string) (*Alert, error) {
	alerts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range alerts {
		if alerts[i].AlertID == alertID {
			return &alerts[i], nil
		}
	}
	return nil, errors.NotFound("alert")
}

// Create appends a new alert row, assigning an id if absent.
func (r *CSVAlertRepository) Create(ctx context.Context, alert *Alert) error {
	if alert.AlertID == "" {
		alert.AlertID = uuid.New().String()
	}
	alerts, err := r.List(ctx)
	if err != nil {
		return err
	}
	alerts = append(alerts, *alert)
	return r.saveAll(alerts)
}

// ExistsUnresolved reports whether an unresolved alert exists for the key.
func (r *CSVAlertRepository) ExistsUnresolved(ctx context.Context, productName, batch, alertType string) (bool, error) {
	alerts, err := r.ListActive(ctx)
	if err != nil {
		return false, err
	}
	for i := range alerts {
		if alerts[i].AlertType == alertType && alerts[i].Matches(productName, batch) {
			return true, nil
		}
	}
	return false, nil
}

// Resolve marks the alert resolved. Returns false when the id is unknown or
// the alert is already resolved; resolution never reverts.
func (r *CSVAlertRepository) Resolve(ctx context.Context, alertID, actor string, at time.Time) (bool, error) {
	alerts, err := r.List(ctx)
	if err != nil {
		return false, err
	}
	for i := range alerts {
		if alerts[i].AlertID != alertID {
			continue
		}
		if alerts[i].Resolved {
			return false, nil
		}
		alerts[i].Resolved = true
		alerts[i].ResolvedBy = actor
		t := at
		alerts[i].ResolvedAt = &t
		return true, r.saveAll(alerts)
	}
	return false, nil
}

// ResolveByMatch resolves every unresolved alert for the product/batch key.
func (r *CSVAlertRepository) ResolveByMatch(ctx context.Context, productName, batch, actor string, at time.Time) (int, error) {
	alerts, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range alerts {
		if alerts[i].Resolved || !alerts[i].Matches(productName, batch) {
			continue
		}
		alerts[i].Resolved = true
		alerts[i].ResolvedBy = actor
		t := at
		alerts[i].ResolvedAt = &t
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return count, r.saveAll(alerts)
}

// TouchLastSent stamps the alert's last_sent_at.
func (r *CSVAlertRepository) TouchLastSent(ctx context.Context, alertID string, at time.Time) error {
	alerts, err := r.List(ctx)
	if err != nil {
		return err
	}
	for i := range alerts {
		if alerts[i].AlertID != alertID {
			continue
		}
		t := at
		alerts[i].LastSentAt = &t
		return r.saveAll(alerts)
	}
	return errors.NotFound("alert")
}

func (r *CSVAlertRepository) saveAll(alerts []Alert) error {
	rows := make([]store.Row, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, encodeAlert(a))
	}
	return r.store.Save(store.TableAlerts, rows)
}
