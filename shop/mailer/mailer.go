// Package mailer delivers plain-text notification emails over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
)

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("mailer: no recipients")

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS     string
	Timeout time.Duration
}

// Enabled reports whether enough is configured to send.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

// SMTP sends each message on a fresh connection.
type SMTP struct {
	cfg  Config
	opts []mail.Option
}

// New validates cfg and prepares the client options.
func New(cfg Config) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, domain.MissingConfig("MAIL_HOST")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, domain.MissingConfig("EMAIL_USER")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return &SMTP{cfg: cfg, opts: opts}, nil
}

func tlsPolicy(v string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, domain.Validation("mail.tls", fmt.Sprintf("unknown policy %q", v))
	}
}

// Send dials the relay and delivers msg, bounded by the configured timeout.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return fmt.Errorf("mailer: client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		logger.Error(ctx, logger.CompMail, "mail.send",
			slog.Int("recipients", len(msg.To)),
			slog.Duration("duration", time.Since(start)),
			logger.Err(err),
		)
		return fmt.Errorf("mailer: send: %w", err)
	}
	logger.Info(ctx, logger.CompMail, "mail.send",
		slog.Int("recipients", len(msg.To)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *SMTP) build(msg Message) (*mail.Msg, error) {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, domain.ValidationWrap("mail.from", err)
	}
	if err := m.To(to...); err != nil {
		return nil, domain.ValidationWrap("mail.to", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// Discard drops every message. It stands in when SMTP is not configured.
type Discard struct{}

func (Discard) Send(ctx context.Context, msg Message) error {
	logger.Debug(ctx, logger.CompMail, "mail.skip", slog.String("reason", "disabled"), slog.Int("recipients", len(msg.To)))
	return nil
}
