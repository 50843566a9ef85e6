package whatsapp

import (
	"context"
	"time"
)

// Message statuses Twilio may report. Anything but failed is treated as
// provisional success; the definitive status arrives via callbacks we do
// not wait for.
const (
	StatusQueued    = "queued"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// SendResult is the transport outcome of one send attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Status    string
	Error     string
}

// InboundMessage is the normalized webhook payload. The bot core only
// consumes From and Body.
type InboundMessage struct {
	From       string
	To         string
	Body       string
	MessageSID string
	Type       string
	ReceivedAt time.Time
}

// Provider is a WhatsApp backend able to send freeform text or an
// approved template with positional parameters.
type Provider interface {
	SendText(ctx context.Context, to, body string) (SendResult, error)
	SendTemplate(ctx context.Context, to, templateSID string, params []string) (SendResult, error)
}
