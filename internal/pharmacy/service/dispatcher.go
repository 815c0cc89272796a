package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/pkg/logger"
	"github.com/lifetag/lifetag-backend/pkg/mailer"
)

// Message is one addressed notification ready for the mail transport.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Role     string
}

// DispatcherConfig carries the dispatcher's addresses and cadence.
type DispatcherConfig struct {
	SiteBase         string
	PharmacyEmail    string
	AdminEmail       string
	RenotifyInterval time.Duration
	QueueSize        int
	Workers          int
}

// Dispatcher fans alerts out to pharmacy, patient, and admin recipients.
// Sending happens on a bounded worker queue so alert creation never blocks
// on the mail transport; a failed send is logged and never rolls an alert
// back.
type Dispatcher struct {
	engine           *AlertEngine
	prescriptionRepo repository.PrescriptionRepository
	patientRepo      repository.PatientRepository
	notifier         mailer.Notifier
	logger           *logger.Logger
	cfg              DispatcherConfig

	queue chan repository.Alert
	wg    sync.WaitGroup
	once  sync.Once
	now   func() time.Time
}

// NewDispatcher creates the dispatcher. Workers are started with Start.
func NewDispatcher(
	engine *AlertEngine,
	prescriptionRepo repository.PrescriptionRepository,
	patientRepo repository.PatientRepository,
	notifier mailer.Notifier,
	cfg DispatcherConfig,
	log *logger.Logger,
) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Dispatcher{
		engine:           engine,
		prescriptionRepo: prescriptionRepo,
		patientRepo:      patientRepo,
		notifier:         notifier,
		logger:           log,
		cfg:              cfg,
		queue:            make(chan repository.Alert, cfg.QueueSize),
		now:              time.Now,
	}
}

// SetClock overrides the dispatcher's clock. Used in tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Start launches the send workers. They drain the queue until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for alert := range d.queue {
				d.deliver(ctx, alert)
			}
		}()
	}
	d.logger.Info().Int("workers", d.cfg.Workers).Msg("notification dispatcher started")
}

// Stop closes the queue and waits for in-flight sends to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

// Dispatch enqueues alerts for delivery. Alerts already notified within the
// renotify interval are suppressed; a full queue drops the alert with a
// warning rather than blocking the caller.
func (d *Dispatcher) Dispatch(alerts []repository.Alert) {
	now := d.now()
	for _, alert := range alerts {
		if alert.Resolved {
			continue
		}
		if alert.LastSentAt != nil && now.Sub(*alert.LastSentAt) < d.cfg.RenotifyInterval {
			continue
		}

		select {
		case d.queue <- alert:
		default:
			d.logger.Warn().Str("alert_id", alert.AlertID).Msg("dispatch queue full, alert dropped")
		}
	}
}

// deliver composes the recipient list for one alert and sends each message,
// retrying transient transport failures with exponential backoff. One
// recipient failing never blocks the rest.
func (d *Dispatcher) deliver(ctx context.Context, alert repository.Alert) {
	messages, err := d.ComposeRecipients(ctx, &alert)
	if err != nil {
		d.logger.Error().Err(err).Str("alert_id", alert.AlertID).Msg("failed to compose recipients")
		return
	}

	sent := 0
	for _, msg := range messages {
		send := func() error {
			return d.notifier.Send(msg.To, msg.Subject, msg.TextBody, msg.HTMLBody)
		}
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		if err := backoff.Retry(send, backoff.WithContext(policy, ctx)); err != nil {
			d.logger.Error().Err(err).
				Str("alert_id", alert.AlertID).
				Str("to", msg.To).
				Str("role", msg.Role).
				Msg("notification send failed")
			continue
		}
		sent++
	}

	if sent > 0 {
		if err := d.engine.TouchLastSent(ctx, alert.AlertID); err != nil {
			d.logger.Error().Err(err).Str("alert_id", alert.AlertID).Msg("failed to stamp last_sent_at")
		}
	}

	d.logger.Info().
		Str("alert_id", alert.AlertID).
		Int("sent", sent).
		Int("recipients", len(messages)).
		Msg("alert dispatched")
}

// ComposeRecipients builds the ordered recipient list for an alert: the
// pharmacy address first, then every patient whose prescription contains the
// alerted medication, then the admin address when configured. Addresses are
// deduplicated keeping the first occurrence, so an admin sharing the pharmacy
// address gets the pharmacy wording only.
func (d *Dispatcher) ComposeRecipients(ctx context.Context, alert *repository.Alert) ([]Message, error) {
	var messages []Message
	seen := map[string]bool{}

	add := func(msg Message) {
		addr := fold(msg.To)
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		messages = append(messages, msg)
	}

	subject := fmt.Sprintf("Stock alert: %s (batch %s) %s", alert.ProductName, alert.Batch, alert.AlertType)

	if d.cfg.PharmacyEmail != "" {
		add(Message{
			To:       d.cfg.PharmacyEmail,
			Subject:  subject,
			TextBody: d.textBody(alert, "chemist", ""),
			HTMLBody: d.htmlBody(alert, "chemist", ""),
			Role:     "chemist",
		})
	}

	prescriptions, err := d.prescriptionRepo.ListByMedication(ctx, alert.ProductName, alert.Batch)
	if err != nil {
		return messages, err
	}
	for _, p := range prescriptions {
		patient, err := d.patientRepo.GetByID(ctx, p.PatientID)
		if err != nil {
			d.logger.Warn().Err(err).
				Str("patient_id", p.PatientID).
				Str("prescription_id", p.PrescriptionID).
				Msg("skipping unknown patient for alert")
			continue
		}
		addr := patient.Address()
		if addr == "" {
			continue
		}
		add(Message{
			To:       addr,
			Subject:  subject,
			TextBody: d.textBody(alert, "patient", patient.Name),
			HTMLBody: d.htmlBody(alert, "patient", patient.Name),
			Role:     "patient",
		})
	}

	if d.cfg.AdminEmail != "" {
		add(Message{
			To:       d.cfg.AdminEmail,
			Subject:  subject,
			TextBody: d.textBody(alert, "admin", ""),
			HTMLBody: d.htmlBody(alert, "admin", ""),
			Role:     "admin",
		})
	}

	return messages, nil
}

// ResolveLink builds the action URL that marks the alert resolved by the
// given role.
func (d *Dispatcher) ResolveLink(alertID, role string) string {
	q := url.Values{}
	q.Set("alert_id", alertID)
	q.Set("user", role)
	return strings.TrimRight(d.cfg.SiteBase, "/") + "/api/resolve_alert?" + q.Encode()
}

func (d *Dispatcher) textBody(alert *repository.Alert, role, patientName string) string {
	var b strings.Builder
	if patientName != "" {
		fmt.Fprintf(&b, "Dear %s,\n\n", patientName)
	}
	fmt.Fprintf(&b, "Alert for %s (batch %s): %s.\n", alert.ProductName, alert.Batch, describeAlert(alert))
	fmt.Fprintf(&b, "Mark as handled: %s\n", d.ResolveLink(alert.AlertID, role))
	return b.String()
}

func (d *Dispatcher) htmlBody(alert *repository.Alert, role, patientName string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if patientName != "" {
		fmt.Fprintf(&b, "<p>Dear %s,</p>", patientName)
	}
	fmt.Fprintf(&b, "<p>Alert for <strong>%s</strong> (batch %s): %s.</p>", alert.ProductName, alert.Batch, describeAlert(alert))
	fmt.Fprintf(&b, `<p><a href="%s">Mark as handled</a></p>`, d.ResolveLink(alert.AlertID, role))
	b.WriteString("</body></html>")
	return b.String()
}

// describeAlert renders the alert condition as a sentence fragment.
func describeAlert(alert *repository.Alert) string {
	switch alert.AlertType {
	case repository.AlertExpired:
		if alert.DaysToExpiry != nil {
			return fmt.Sprintf("expired %d days ago", -*alert.DaysToExpiry)
		}
		return "expired"
	case repository.AlertExpiringSoon:
		if alert.DaysToExpiry != nil {
			return fmt.Sprintf("expires in %d days", *alert.DaysToExpiry)
		}
		return "expiring soon"
	case repository.AlertLowStock:
		return "stock is running low"
	default:
		return alert.AlertType
	}
}
