package mail

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"course-entitlements/internal/domain/ports/adapter"
)

var _ adapter.Mailer = (*NoopMailer)(nil)

// NoopMailer records messages instead of sending them. Used in dev mode and tests.
type NoopMailer struct {
	mu     sync.Mutex
	sent   []adapter.Message
	logger *zerolog.Logger
}

func NewNoopMailer(logger *zerolog.Logger) *NoopMailer {
	return &NoopMailer{logger: logger}
}

func (m *NoopMailer) Send(ctx context.Context, msg adapter.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Info().Str("subject", msg.Subject).Msg("noop mailer: message recorded")
	}
	return nil
}

// Sent returns a copy of all recorded messages.
func (m *NoopMailer) Sent() []adapter.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.Message(nil), m.sent...)
}
