package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// SweepScheduler runs the sweep-then-dispatch cycle on a fixed interval with
// an immediate first run. Ticks arriving while a cycle is still in flight
// are skipped: the dedup rule makes concurrent sweeps data-safe, not cheap.
type SweepScheduler struct {
	engine     *AlertEngine
	dispatcher *Dispatcher
	interval   time.Duration

	expiryThresholdDays int
	lowStockThreshold   int
	renotifyInterval    time.Duration

	logger  *logger.Logger
	cancel  context.CancelFunc
	running atomic.Bool
	now     func() time.Time
}

// NewSweepScheduler creates the scheduler.
func NewSweepScheduler(
	engine *AlertEngine,
	dispatcher *Dispatcher,
	interval time.Duration,
	expiryThresholdDays, lowStockThreshold int,
	renotifyInterval time.Duration,
	log *logger.Logger,
) *SweepScheduler {
	return &SweepScheduler{
		engine:              engine,
		dispatcher:          dispatcher,
		interval:            interval,
		expiryThresholdDays: expiryThresholdDays,
		lowStockThreshold:   lowStockThreshold,
		renotifyInterval:    renotifyInterval,
		logger:              log,
		now:                 time.Now,
	}
}

// SetClock overrides the scheduler's clock. Used in tests.
func (s *SweepScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches the scheduler in a background goroutine.
func (s *SweepScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("sweep scheduler started")

		s.RunCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("sweep scheduler stopped")
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine.
func (s *SweepScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// RunCycle runs one sweep-and-dispatch cycle. Returns false when a previous
// cycle was still running and this one was skipped.
func (s *SweepScheduler) RunCycle(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("sweep cycle still in flight, tick skipped")
		return false
	}
	defer s.running.Store(false)

	start := s.now()

	created, err := s.engine.Sweep(ctx, s.expiryThresholdDays, s.lowStockThreshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled sweep failed")
		return true
	}
	s.dispatcher.Dispatch(created)

	// Renotify pass: unresolved alerts whose last notification is older than
	// the renotify interval go out again. Alerts created this cycle are
	// already queued and excluded.
	justCreated := make(map[string]bool, len(created))
	for _, a := range created {
		justCreated[a.AlertID] = true
	}
	active, err := s.engine.ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list active alerts for renotify pass")
	} else {
		stale := active[:0:0]
		for _, a := range active {
			if justCreated[a.AlertID] {
				continue
			}
			if a.LastSentAt == nil || s.now().Sub(*a.LastSentAt) >= s.renotifyInterval {
				stale = append(stale, a)
			}
		}
		s.dispatcher.Dispatch(stale)
	}

	s.logger.Info().
		Dur("duration", s.now().Sub(start)).
		Int("new_alerts", len(created)).
		Msg("sweep cycle completed")
	return true
}
