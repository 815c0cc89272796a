// Package mailer provides outbound email delivery for alert notifications.
// The engine only builds addressed messages; a Notifier delivers them.
package mailer

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/lifetag/lifetag-backend/pkg/config"
	"github.com/lifetag/lifetag-backend/pkg/logger"
)

// Notifier delivers a single message to a single recipient.
type Notifier interface {
	Send(to, subject, textBody, htmlBody string) error
}

// SMTPNotifier sends mail over SMTP with STARTTLS.
type SMTPNotifier struct {
	host    string
	port    int
	user    string
	pass    string
	from    string
	timeout time.Duration
	logger  *logger.Logger
}

// NewSMTPNotifier creates a notifier from SMTP configuration.
func NewSMTPNotifier(cfg *config.SMTPConfig, log *logger.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		host:    cfg.Host,
		port:    cfg.Port,
		user:    cfg.User,
		pass:    cfg.Password,
		from:    cfg.FromEmail,
		timeout: cfg.Timeout,
		logger:  log,
	}
}

// Send delivers one message. The timeout applies to the whole SMTP exchange.
func (n *SMTPNotifier) Send(to, subject, textBody, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("send called without recipient")
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	conn, err := net.DialTimeout("tcp", addr, n.timeout)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(n.timeout))

	c, err := smtp.NewClient(conn, n.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(n.tlsConfig()); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if n.user != "" {
		auth := smtp.PlainAuth("", n.user, n.pass, n.host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(n.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(n.from, to, subject, textBody, htmlBody)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	if err := c.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}

	n.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// tlsConfig names the server for certificate verification; StartTLS fails
// its handshake without a ServerName.
func (n *SMTPNotifier) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: n.host}
}

// buildMessage assembles a multipart/alternative MIME message. The HTML part
// is omitted when empty.
func buildMessage(from, to, subject, textBody, htmlBody string) []byte {
	var b strings.Builder
	boundary := "lifetag-alt-boundary"

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody)
		b.WriteString("\r\n")
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// LogNotifier writes messages to the log instead of sending them.
// Used in development when no SMTP host is configured.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// Send logs the message and reports success.
func (n *LogNotifier) Send(to, subject, textBody, _ string) error {
	n.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", textBody).
		Msg("email (console)")
	return nil
}

// FromConfig returns the SMTP notifier when a host is configured,
// the log notifier otherwise.
func FromConfig(cfg *config.SMTPConfig, log *logger.Logger) Notifier {
	if cfg.Host == "" {
		log.Info().Msg("SMTP not configured, logging emails instead")
		return NewLogNotifier(log)
	}
	return NewSMTPNotifier(cfg, log)
}
