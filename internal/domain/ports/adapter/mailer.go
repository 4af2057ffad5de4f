package adapter

import "context"

type Message struct {
	To      string
	Bcc     string // optional
	Subject string
	Body    string // HTML
}

// Mailer sends outbound notifications. Delivery is fire-and-forget for callers:
// errors are reported but never retried by them.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
