package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/service"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// fakeNotifier records sends and can fail selected addresses.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentMail
	fails map[string]bool
}

type sentMail struct {
	to      string
	subject string
	text    string
	html    string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{fails: map[string]bool{}}
}

func (n *fakeNotifier) Send(to, subject, textBody, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails[to] {
		return fmt.Errorf("smtp refused %s", to)
	}
	n.sent = append(n.sent, sentMail{to: to, subject: subject, text: textBody, html: htmlBody})
	return nil
}

func (n *fakeNotifier) sentTo() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.to)
	}
	return out
}

func newTestDispatcher(t *testing.T, env *testEnv, notifier *fakeNotifier) *service.Dispatcher {
	t.Helper()
	d := service.NewDispatcher(env.engine, env.prescriptionRepo, env.patientRepo, notifier, service.DispatcherConfig{
		SiteBase:         "http://localhost:8080",
		PharmacyEmail:    "pharmacy@example.com",
		AdminEmail:       "admin@example.com",
		RenotifyInterval: 168 * time.Hour,
		QueueSize:        16,
		Workers:          1,
	}, logger.Nop())
	d.SetClock(func() time.Time { return fixedNow })
	return d
}

func registerPatient(t *testing.T, env *testEnv, id, name, email string) {
	t.Helper()
	require.NoError(t, env.patientRepo.Create(context.Background(), &repository.Patient{
		PatientID:    id,
		Name:         name,
		Email:        email,
		RegisteredAt: fixedNow,
	}))
}

func prescribe(t *testing.T, env *testEnv, patientID, product, batch string) {
	t.Helper()
	require.NoError(t, env.prescriptionRepo.Create(context.Background(), &repository.Prescription{
		PatientID:   patientID,
		DoctorName:  "Dr. Rao",
		Medications: []repository.Medication{{ProductName: product, Batch: batch, Qty: 1}},
	}))
}

func sweepOne(t *testing.T, env *testEnv) repository.Alert {
	t.Helper()
	created, err := env.engine.Sweep(context.Background(), 15, 5)
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0]
}

func TestDispatcher_ComposeRecipientsOrderAndDedup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)

	registerPatient(t, env, "p1", "Asha", "asha@example.com")
	registerPatient(t, env, "p2", "Ravi", "ravi@example.com")
	prescribe(t, env, "p1", "Paracetamol", "B1")
	prescribe(t, env, "p2", "Paracetamol", "B1")
	prescribe(t, env, "p2", "Ibuprofen", "X9") // unrelated medication

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	alert := sweepOne(t, env)

	messages, err := d.ComposeRecipients(ctx, &alert)
	require.NoError(t, err)

	require.Len(t, messages, 4)
	assert.Equal(t, "pharmacy@example.com", messages[0].To)
	assert.Equal(t, "chemist", messages[0].Role)
	assert.Equal(t, "asha@example.com", messages[1].To)
	assert.Equal(t, "ravi@example.com", messages[2].To)
	assert.Equal(t, "admin@example.com", messages[3].To)
	assert.Equal(t, "admin", messages[3].Role)

	// Patient bodies are personalized and carry the resolution link.
	assert.Contains(t, messages[1].TextBody, "Dear Asha")
	assert.Contains(t, messages[1].TextBody, "/api/resolve_alert?alert_id="+alert.AlertID+"&user=patient")
	assert.Contains(t, messages[0].TextBody, "user=chemist")
	assert.Contains(t, messages[3].HTMLBody, "user=admin")
}

func TestDispatcher_AdminSharingPharmacyAddressGetsOneMail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()

	d := service.NewDispatcher(env.engine, env.prescriptionRepo, env.patientRepo, notifier, service.DispatcherConfig{
		SiteBase:         "http://localhost:8080",
		PharmacyEmail:    "shared@example.com",
		AdminEmail:       "shared@example.com",
		RenotifyInterval: 168 * time.Hour,
	}, logger.Nop())

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	alert := sweepOne(t, env)

	messages, err := d.ComposeRecipients(ctx, &alert)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	// Pharmacy wording wins on a shared address.
	assert.Equal(t, "chemist", messages[0].Role)
}

func TestDispatcher_SendFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	notifier.fails["pharmacy@example.com"] = true
	d := newTestDispatcher(t, env, notifier)

	registerPatient(t, env, "p1", "Asha", "asha@example.com")
	prescribe(t, env, "p1", "Paracetamol", "B1")

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	alert := sweepOne(t, env)

	d.Start(ctx)
	d.Dispatch([]repository.Alert{alert})
	d.Stop()

	sent := notifier.sentTo()
	assert.NotContains(t, sent, "pharmacy@example.com")
	assert.Contains(t, sent, "asha@example.com")
	assert.Contains(t, sent, "admin@example.com")

	// A partially delivered alert still counts as sent.
	got, err := env.engine.Get(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastSentAt)
	assert.False(t, got.Resolved)
}

func TestDispatcher_SuppressesRecentlyNotified(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	alert := sweepOne(t, env)

	recent := fixedNow.Add(-time.Hour)
	alert.LastSentAt = &recent

	d.Start(ctx)
	d.Dispatch([]repository.Alert{alert})
	d.Stop()

	assert.Empty(t, notifier.sentTo())
}

func TestDispatcher_RenotifiesStaleAlerts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	alert := sweepOne(t, env)

	stale := fixedNow.Add(-200 * time.Hour)
	alert.LastSentAt = &stale

	d.Start(ctx)
	d.Dispatch([]repository.Alert{alert})
	d.Stop()

	assert.NotEmpty(t, notifier.sentTo())
}

func TestDispatcher_SkipsResolvedAlerts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := newFakeNotifier()
	d := newTestDispatcher(t, env, notifier)

	_, err := env.ledger.Upsert(ctx, stockEntry("Paracetamol", "B1", "Jan-24", 3))
	require.NoError(t, err)
	alert := sweepOne(t, env)
	alert.Resolved = true

	d.Start(ctx)
	d.Dispatch([]repository.Alert{alert})
	d.Stop()

	assert.Empty(t, notifier.sentTo())
}
