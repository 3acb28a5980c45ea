package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/domain"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport sends one message to its single recipient.
type Transport interface {
	Send(ctx context.Context, m Message) error
}

type MailerConfig struct {
	AdminEmail string
	// Threshold is only quoted in the escalation text.
	Threshold int
}

// Mailer composes the alert e-mails and hands them to a Transport.
type Mailer struct {
	transport Transport
	cfg       MailerConfig
}

func NewMailer(t Transport, cfg MailerConfig) *Mailer {
	return &Mailer{transport: t, cfg: cfg}
}

func (m *Mailer) AlertUsers(ctx context.Context, def domain.CheckDefinition, recipients []string) error {
	var err error
	for _, to := range recipients {
		if to == "" {
			continue
		}
		msg := Message{
			To:      to,
			Subject: fmt.Sprintf("%s check has failed", def.URL),
			Body:    fmt.Sprintf("CheckId %d for URL %s is in a failure state.", def.ID, def.URL),
		}
		if sendErr := m.transport.Send(ctx, msg); sendErr != nil {
			err = multierr.Append(err, fmt.Errorf("send to %s: %w", to, sendErr))
		}
	}
	return err
}

func (m *Mailer) AlertAdmin(ctx context.Context, def domain.CheckDefinition) error {
	if m.cfg.AdminEmail == "" {
		return errors.New("admin email not configured")
	}
	msg := Message{
		To:      m.cfg.AdminEmail,
		Subject: fmt.Sprintf("%s is in a failure state for %d or more times", def.URL, m.cfg.Threshold),
		Body: fmt.Sprintf("CheckId %d for URL %s has failed %d or more times. "+
			"Admin attention may be required to ensure no issue is present.", def.ID, def.URL, m.cfg.Threshold),
	}
	if err := m.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send to admin: %w", err)
	}
	return nil
}

// LogTransport stands in for SMTP when no server is configured: messages are
// written to the log instead of being delivered.
type LogTransport struct {
	Logger *zap.Logger
}

func (l LogTransport) Send(_ context.Context, m Message) error {
	l.Logger.Info("email_not_sent_smtp_disabled",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body),
	)
	return nil
}
