package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/events"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/dateparse"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// AlertEngine classifies stock rows into expiry and low-stock alerts while
// holding the dedup invariant: at most one unresolved alert per
// (product, batch, alert_type), compared case-insensitively. Every creation
// path, scheduled sweep or dispense-time check, goes through CreateOrSkip.
type AlertEngine struct {
	stockRepo repository.StockRepository
	alertRepo repository.AlertRepository
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewAlertEngine creates the alert engine.
func NewAlertEngine(
	stockRepo repository.StockRepository,
	alertRepo repository.AlertRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *AlertEngine {
	return &AlertEngine{
		stockRepo: stockRepo,
		alertRepo: alertRepo,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// SetClock overrides the engine's clock. Used in tests.
func (e *AlertEngine) SetClock(now func() time.Time) {
	e.now = now
}

// classify maps one stock row to an alert type. Expiry conditions take
// precedence over low stock. ok is false when the row is skipped entirely:
// blank product or batch, or an expiry that does not parse.
func classify(entry *repository.StockEntry, now time.Time, expiryThresholdDays, lowStockThreshold int) (alertType string, daysLeft int, ok bool) {
	if strings.TrimSpace(entry.ProductName) == "" || strings.TrimSpace(entry.Batch) == "" {
		return "", 0, false
	}

	expiry, err := dateparse.Parse(entry.Exp)
	if err != nil {
		return "", 0, false
	}

	daysLeft = dateparse.DaysUntil(expiry, now)
	switch {
	case daysLeft < 0:
		return repository.AlertExpired, daysLeft, true
	case daysLeft <= expiryThresholdDays:
		return repository.AlertExpiringSoon, daysLeft, true
	case entry.Qty <= lowStockThreshold:
		return repository.AlertLowStock, daysLeft, true
	default:
		return "", daysLeft, false
	}
}

// Sweep scans the whole stock table and creates the alerts that are missing.
// Re-running on unchanged stock creates nothing: only newly created alerts
// are returned, since the return set drives notification dispatch.
func (e *AlertEngine) Sweep(ctx context.Context, expiryThresholdDays, lowStockThreshold int) ([]repository.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.stockRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var created []repository.Alert
	for i := range entries {
		alertType, daysLeft, ok := classify(&entries[i], now, expiryThresholdDays, lowStockThreshold)
		if !ok {
			continue
		}

		alert, isNew, err := e.createOrSkipLocked(ctx, entries[i].ProductName, entries[i].Batch, entries[i].Exp, &daysLeft, alertType)
		if err != nil {
			e.logger.Error().Err(err).
				Str("product_name", entries[i].ProductName).
				Str("batch", entries[i].Batch).
				Msg("sweep: failed to create alert")
			continue
		}
		if isNew {
			created = append(created, *alert)
		}
	}

	e.logger.Info().Int("new_alerts", len(created)).Msg("alert sweep completed")
	return created, nil
}

// CreateOrSkip inserts an alert unless an unresolved one already exists for
// the same (product, batch, type) key. Returns the new or existing alert and
// whether it was newly created.
func (e *AlertEngine) CreateOrSkip(ctx context.Context, productName, batch, exp string, daysLeft *int, alertType string) (*repository.Alert, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createOrSkipLocked(ctx, productName, batch, exp, daysLeft, alertType)
}

func (e *AlertEngine) createOrSkipLocked(ctx context.Context, productName, batch, exp string, daysLeft *int, alertType string) (*repository.Alert, bool, error) {
	existing, err := e.findUnresolved(ctx, productName, batch, alertType)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	var days *int
	if daysLeft != nil {
		d := *daysLeft
		days = &d
	}

	alert := &repository.Alert{
		ProductName:  productName,
		Batch:        batch,
		Exp:          exp,
		DaysToExpiry: days,
		AlertType:    alertType,
		CreatedAt:    e.now(),
	}
	if err := e.alertRepo.Create(ctx, alert); err != nil {
		return nil, false, err
	}

	e.publisher.PublishAlertCreated(ctx, alert)
	return alert, true, nil
}

// findUnresolved returns the unresolved alert for the (product, batch, type)
// key, or nil when none exists.
func (e *AlertEngine) findUnresolved(ctx context.Context, productName, batch, alertType string) (*repository.Alert, error) {
	active, err := e.alertRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range active {
		if active[i].AlertType == alertType && active[i].Matches(productName, batch) {
			return &active[i], nil
		}
	}
	return nil, nil
}

// Resolve marks one alert resolved by the given actor. Returns false when
// the id is unknown or the alert was already resolved; the first resolver
// wins and is never overwritten.
func (e *AlertEngine) Resolve(ctx context.Context, alertID, actor string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.alertRepo.Resolve(ctx, alertID, actor, e.now())
	if err != nil {
		return false, err
	}
	if ok {
		e.publisher.PublishAlertResolved(ctx, alertID, actor)
	}
	return ok, nil
}

// ResolveByMatch bulk-resolves every unresolved alert for the product/batch
// key. A blank field acts as a wildcard.
func (e *AlertEngine) ResolveByMatch(ctx context.Context, productName, batch, actor string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	count, err := e.alertRepo.ResolveByMatch(ctx, productName, batch, actor, e.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.logger.Info().
			Int("resolved", count).
			Str("product_name", productName).
			Str("batch", batch).
			Msg("alerts bulk-resolved")
	}
	return count, nil
}

// TouchLastSent records that a notification went out for the alert,
// independent of resolution.
func (e *AlertEngine) TouchLastSent(ctx context.Context, alertID string) error {
	return e.alertRepo.TouchLastSent(ctx, alertID, e.now())
}

// ListActive returns the unresolved alerts.
func (e *AlertEngine) ListActive(ctx context.Context) ([]repository.Alert, error) {
	return e.alertRepo.ListActive(ctx)
}

// Get returns one alert by id.
func (e *AlertEngine) Get(ctx context.Context, alertID string) (*repository.Alert, error) {
	return e.alertRepo.GetByID(ctx, alertID)
}
