package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	// UseTLS selects implicit TLS (SMTPS). Without it gomail still upgrades
	// with STARTTLS when the server offers it.
	UseTLS bool
	From   string
	// Retries is the number of extra attempts after a failed send.
	Retries int
}

// Sender is the part of *gomail.Dialer the transport uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPTransport struct {
	cfg     SMTPConfig
	sender  Sender
	logger  *zap.Logger
	backoff time.Duration
}

func NewSMTPTransport(cfg SMTPConfig, logger *zap.Logger) (*SMTPTransport, error) {
	if cfg.Server == "" {
		return nil, errors.New("smtp server must not be empty")
	}
	if cfg.Port == 0 {
		return nil, errors.New("smtp port must not be zero")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address must not be empty")
	}
	d := gomail.NewDialer(cfg.Server, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS
	return &SMTPTransport{cfg: cfg, sender: d, logger: logger, backoff: 500 * time.Millisecond}, nil
}

func (s *SMTPTransport) Send(ctx context.Context, m Message) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.backoff
	eb.MaxInterval = 20 * time.Second
	retries := s.cfg.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	return backoff.RetryNotify(func() error {
		return s.sender.DialAndSend(msg)
	}, b, func(err error, wait time.Duration) {
		s.logger.Warn("smtp_send_retry",
			zap.String("to", m.To),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}
