// Package mailer implements the outbound notification transport over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Transport sends a notification to a recipient. Implementations must treat
// a returned error as retryable; the reminder worker relies on that to leave
// the task unmarked and let the queue redeliver.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPTransport delivers notifications as plain-text e-mail.
type SMTPTransport struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPTransport creates an SMTP-backed Transport.
func NewSMTPTransport(cfg Config, logger *slog.Logger) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPTransport{
		client: client,
		from:   cfg.From,
		logger: logger.With("component", "smtp_transport"),
	}, nil
}

// Send delivers a plain-text message. Errors are returned unwrapped so the
// caller can decide whether to retry.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(t.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	t.logger.Debug("notification delivered", "subject", subject)
	return nil
}

// LogTransport is a development fallback that logs instead of sending. It is
// used when no SMTP host is configured so the reminder pipeline still
// completes locally.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a log-only Transport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger.With("component", "log_transport")}
}

// Send logs the would-be delivery and reports success.
func (t *LogTransport) Send(ctx context.Context, to, subject, body string) error {
	t.logger.Info("notification (log transport)",
		"subject", subject,
		"body", body)
	return nil
}
