// Package service implements the pharmacy core: the stock ledger, the alert
// engine, the dispense flow, notification dispatch, and the periodic sweep
// scheduler. Every read-modify-write cycle over the shared tables is guarded
// by the owning service's mutex; the repositories only serialise individual
// load/save calls.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/events"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/errors"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// IngestResult reports the outcome of a batch stock ingestion. Callers must
// inspect Applied rather than assume every input row landed.
type IngestResult struct {
	Applied int          `json:"applied"`
	Skipped []SkippedRow `json:"skipped,omitempty"`
}

// SkippedRow records one ingestion row that was not applied and why.
type SkippedRow struct {
	ProductName string `json:"product_name"`
	Batch       string `json:"batch"`
	Reason      string `json:"reason"`
}

// LedgerService owns the medicine stock table. All mutations of stock rows go
// through it.
type LedgerService struct {
	stockRepo repository.StockRepository
	alerts    *AlertEngine
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewLedgerService creates the stock ledger. The alert engine may be nil in
// tests that only exercise stock mutations.
func NewLedgerService(
	stockRepo repository.StockRepository,
	alerts *AlertEngine,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		stockRepo: stockRepo,
		alerts:    alerts,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// SetClock overrides the ledger's clock. Used in tests.
func (s *LedgerService) SetClock(now func() time.Time) {
	s.now = now
}

// Upsert merges one stock record into the ledger. Rows with a non-positive
// quantity are dropped and reported as not applied rather than erroring the
// caller, matching the ingestion policy for malformed bill rows. Returns
// whether the row was applied.
func (s *LedgerService) Upsert(ctx context.Context, entry repository.StockEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.stockRepo.List(ctx)
	if err != nil {
		return false, err
	}

	entries, merged, applied, reason := applyEntry(entries, entry, s.now())
	if !applied {
		s.logger.Warn().
			Str("product_name", entry.ProductName).
			Str("batch", entry.Batch).
			Str("reason", reason).
			Msg("stock row skipped")
		return false, nil
	}

	if err := s.stockRepo.ReplaceAll(ctx, entries); err != nil {
		return false, err
	}

	s.publisher.PublishStockUpdated(ctx, &entry, merged)
	return true, nil
}

// IngestBill applies a batch of bill rows in one read-modify-write cycle.
// Per-row failures are collected as skip reasons; a storage failure surfaces
// as zero applied.
func (s *LedgerService) IngestBill(ctx context.Context, rows []repository.StockEntry) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.stockRepo.List(ctx)
	if err != nil {
		return &IngestResult{}, err
	}

	result := &IngestResult{}
	now := s.now()
	for _, row := range rows {
		next, merged, applied, reason := applyEntry(entries, row, now)
		if !applied {
			result.Skipped = append(result.Skipped, SkippedRow{
				ProductName: row.ProductName,
				Batch:       row.Batch,
				Reason:      reason,
			})
			continue
		}
		entries = next
		result.Applied++
		s.publisher.PublishStockUpdated(ctx, &row, merged)
	}

	if result.Applied > 0 {
		if err := s.stockRepo.ReplaceAll(ctx, entries); err != nil {
			return &IngestResult{}, err
		}
	}

	s.logger.Info().
		Int("applied", result.Applied).
		Int("skipped", len(result.Skipped)).
		Msg("bill ingested")
	return result, nil
}

// applyEntry merges one incoming row into the in-memory stock slice. It
// returns the updated slice, whether the row merged into an existing lot, and
// whether it was applied at all (with a skip reason when not).
func applyEntry(entries []repository.StockEntry, incoming repository.StockEntry, now time.Time) ([]repository.StockEntry, bool, bool, string) {
	if incoming.Qty <= 0 {
		return entries, false, false, "non-positive quantity"
	}

	// Bills sometimes carry a batch without a product name column. Inherit
	// the name from the first row with the same batch.
	if strings.TrimSpace(incoming.ProductName) == "" {
		batch := fold(incoming.Batch)
		if batch == "" {
			return entries, false, false, "blank product name and batch"
		}
		for i := range entries {
			if fold(entries[i].Batch) == batch {
				incoming.ProductName = entries[i].ProductName
				break
			}
		}
		if strings.TrimSpace(incoming.ProductName) == "" {
			return entries, false, false, "blank product name"
		}
	}

	key := incoming.Key()
	for i := range entries {
		if entries[i].Key() == key {
			entries[i].Qty += incoming.Qty
			entries[i].LastUpdate = now
			return entries, true, true, ""
		}
	}

	incoming.LastUpdate = now
	return append(entries, incoming), false, true, ""
}

// Decrement subtracts qty from the lot matching the product name
// (case-insensitive) and batch. It fails without mutating when the lot is
// unknown or holds less than requested.
func (s *LedgerService) Decrement(ctx context.Context, productName, batch string, qty int) error {
	if qty <= 0 {
		return errors.Validation("decrement quantity must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.stockRepo.List(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i := range entries {
		if fold(entries[i].ProductName) == fold(productName) && strings.TrimSpace(entries[i].Batch) == strings.TrimSpace(batch) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NotFound("batch")
	}

	if entries[idx].Qty < qty {
		return errors.InsufficientStock(entries[idx].Qty, qty)
	}

	entries[idx].Qty -= qty
	entries[idx].LastUpdate = s.now()

	if err := s.stockRepo.ReplaceAll(ctx, entries); err != nil {
		return err
	}

	s.publisher.PublishStockUpdated(ctx, &entries[idx], true)
	return nil
}

// RemoveByKey deletes every stock row matching the given non-empty subset of
// (product name, batch), case-insensitively, and bulk-resolves the matching
// alerts so they do not linger for inventory that no longer exists. Returns
// the number of rows removed and alerts resolved.
func (s *LedgerService) RemoveByKey(ctx context.Context, productName, batch, actor string) (int, int, error) {
	if strings.TrimSpace(productName) == "" && strings.TrimSpace(batch) == "" {
		return 0, 0, errors.Validation("product_name or batch required")
	}

	s.mu.Lock()
	entries, err := s.stockRepo.List(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, 0, err
	}

	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if matchesKey(&e, productName, batch) {
			removed++
			continue
		}
		kept = append(kept, e)
	}

	if removed > 0 {
		if err := s.stockRepo.ReplaceAll(ctx, kept); err != nil {
			s.mu.Unlock()
			return 0, 0, err
		}
	}
	s.mu.Unlock()

	resolved := 0
	if removed > 0 && s.alerts != nil {
		resolved, err = s.alerts.ResolveByMatch(ctx, productName, batch, actor)
		if err != nil {
			s.logger.Error().Err(err).
				Str("product_name", productName).
				Str("batch", batch).
				Msg("failed to resolve alerts for removed stock")
		}
	}

	if removed > 0 {
		s.publisher.PublishStockRemoved(ctx, productName, batch, removed, resolved)
	}
	return removed, resolved, nil
}

// matchesKey reports whether the entry matches the non-empty fields of the
// (product name, batch) pair.
func matchesKey(e *repository.StockEntry, productName, batch string) bool {
	if p := fold(productName); p != "" && fold(e.ProductName) != p {
		return false
	}
	if b := fold(batch); b != "" && fold(e.Batch) != b {
		return false
	}
	return true
}

// List returns the current stock rows.
func (s *LedgerService) List(ctx context.Context) ([]repository.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stockRepo.List(ctx)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
