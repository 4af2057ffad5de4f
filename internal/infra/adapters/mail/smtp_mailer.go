package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"course-entitlements/internal/config"
	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/ports/adapter"
	"course-entitlements/internal/infra/metrics"
)

var _ adapter.Mailer = (*SMTPMailer)(nil)

// SMTPMailer sends HTML emails via SMTP with optional PLAIN auth.
type SMTPMailer struct {
	addr   string
	auth   smtp.Auth
	sender string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zerolog.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *zerolog.Logger) *SMTPMailer {
	sender := cfg.Sender
	if sender == "" {
		sender = "no-reply@localhost"
		logger.Warn().Str("sender", sender).Msg("smtp.sender not set, using default sender")
	}
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	l := logger.With().Str("component", "smtp_mailer").Logger()
	return &SMTPMailer{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:   auth,
		sender: sender,
		send:   smtp.SendMail,
		logger: &l,
	}
}

// Send delivers msg. The Bcc recipient is added to the envelope only, never to the headers.
func (m *SMTPMailer) Send(ctx context.Context, msg adapter.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpts := []string{msg.To}
	if msg.Bcc != "" && !strings.EqualFold(msg.Bcc, msg.To) {
		rcpts = append(rcpts, msg.Bcc)
	}

	err := m.send(m.addr, m.auth, m.sender, rcpts, buildMessage(m.sender, msg))
	if err != nil {
		metrics.IncMailSend("error")
		m.logger.Error().Err(err).Str("addr", m.addr).Msg("smtp send failed")
		return err
	}
	metrics.IncMailSend("sent")
	m.logger.Debug().Str("addr", m.addr).Int("recipients", len(rcpts)).Msg("email sent")
	return nil
}

func buildMessage(sender string, msg adapter.Message) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, msg.To, msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			msg.Body,
	)
}
