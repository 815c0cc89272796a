package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/service"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

func newTestScheduler(t *testing.T, env *testEnv, d *service.Dispatcher) *service.SweepScheduler {
	t.Helper()
	s := service.NewSweepScheduler(env.engine, d, time.Hour, 15, 5, 168*time.Hour, logger.Nop())
	s.SetClock(func() time.Time { return fixedNow })
	return s
}

func TestSchedulerRunCycle_SweepsAndDispatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)
	d.Start(ctx)
	s := newTestScheduler(t, env, d)

	registerPatient(t, env, "p1", "Asha", "asha@example.com")
	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 30))
	require.NoError(t, err)

	ran := s.RunCycle(ctx)
	d.Stop()
	assert.True(t, ran)

	// The lone expired batch was swept and fanned out once.
	sent := notifier.sentTo()
	assert.Contains(t, sent, "pharmacy@example.com")
	assert.Contains(t, sent, "admin@example.com")

	active, err := env.engine.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].LastSentAt)
}

func TestSchedulerRunCycle_SecondCycleIsQuiet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)
	d.Start(ctx)
	s := newTestScheduler(t, env, d)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 30))
	require.NoError(t, err)

	require.True(t, s.RunCycle(ctx))
	d.Stop()
	first := len(notifier.sentTo())
	require.Greater(t, first, 0)

	// The alert is unresolved and freshly notified, so the next cycle
	// neither duplicates it nor renotifies.
	d2 := newTestDispatcher(t, env, notifier)
	d2.Start(ctx)
	s2 := newTestScheduler(t, env, d2)
	require.True(t, s2.RunCycle(ctx))
	d2.Stop()

	assert.Equal(t, first, len(notifier.sentTo()))

	active, err := env.engine.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSchedulerRunCycle_RenotifiesAfterInterval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)
	d.Start(ctx)
	s := newTestScheduler(t, env, d)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 30))
	require.NoError(t, err)

	require.True(t, s.RunCycle(ctx))
	d.Stop()
	first := len(notifier.sentTo())

	// Jump both clocks past the renotify window.
	later := fixedNow.Add(200 * time.Hour)
	s.SetClock(func() time.Time { return later })

	d2 := newTestDispatcher(t, env, notifier)
	d2.SetClock(func() time.Time { return later })
	d2.Start(ctx)
	s2 := service.NewSweepScheduler(env.engine, d2, time.Hour, 15, 5, 168*time.Hour, logger.Nop())
	s2.SetClock(func() time.Time { return later })
	require.True(t, s2.RunCycle(ctx))
	d2.Stop()

	assert.Greater(t, len(notifier.sentTo()), first)
}

func TestSchedulerStartStop(t *testing.T) {
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)
	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop()

	s := newTestScheduler(t, env, d)
	s.Start(ctx)
	s.Stop()
}
