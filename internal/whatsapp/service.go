// Package whatsapp is the outbound message transport: a Twilio-backed
// provider plus a service implementing the freeform-first,
// template-fallback delivery policy.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// Service wraps a Provider with the message-selection policy: try a
// freeform body first (works inside the 24-hour session window), fall
// back to the approved fallback template only when Twilio rejects the
// send for being outside that window.
type Service struct {
	provider            Provider
	fallbackTemplateSID string // optional; empty disables the fallback
	log                 *zap.Logger
}

// NewService returns a Service over the given provider.
func NewService(provider Provider, fallbackTemplateSID string, log *zap.Logger) *Service {
	return &Service{provider: provider, fallbackTemplateSID: fallbackTemplateSID, log: log}
}

// SendResponse delivers body to the user, freeform-first with template
// fallback. The returned result reflects the attempt that was actually
// accepted by the transport.
func (s *Service) SendResponse(ctx context.Context, to, body string) (SendResult, error) {
	res, err := s.provider.SendText(ctx, to, body)
	if err == nil && res.Success {
		return res, nil
	}

	detail := res.Error
	if err != nil {
		detail = err.Error()
	}
	if s.fallbackTemplateSID == "" || !isSessionWindowError(detail) {
		return res, err
	}

	s.log.Warn("freeform send rejected, falling back to template",
		zap.String("to", to),
		zap.String("error", detail),
	)
	return s.provider.SendTemplate(ctx, to, s.fallbackTemplateSID, []string{body})
}

// SendMenu renders a numbered option list and delivers it like any
// other response.
func (s *Service) SendMenu(ctx context.Context, to, title string, options []string) (SendResult, error) {
	return s.SendResponse(ctx, to, BuildMenu(title, options))
}

// Twilio error codes for sends attempted outside the 24-hour session
// window.
func isSessionWindowError(detail string) bool {
	d := strings.ToLower(detail)
	return strings.Contains(d, "63051") ||
		strings.Contains(d, "63016") ||
		strings.Contains(d, "24-hour")
}

var menuDigits = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣"}

// BuildMenu formats a numbered reply menu.
func BuildMenu(title string, options []string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for i, opt := range options {
		if i < len(menuDigits) {
			b.WriteString(menuDigits[i])
		} else {
			fmt.Fprintf(&b, "%d.", i+1)
		}
		b.WriteString(" ")
		b.WriteString(opt)
		b.WriteString("\n")
	}
	b.WriteString("\nReply with the number.")
	return b.String()
}

// BuildReminderBody renders the delivery message for one reminder
// occurrence, with the fire time shown in the user's timezone.
func BuildReminderBody(t domain.ReminderType, at time.Time, location string, loc *time.Location) string {
	timeStr := at.In(loc).Format("15:04")
	locationStr := ""
	if location != "" {
		locationStr = " in " + location
	}

	switch t {
	case domain.ReminderTefillin:
		return fmt.Sprintf("✨ Tefillin Reminder ✨\nIt's time to put on tefillin (sunset at %s%s).", timeStr, locationStr)
	case domain.ReminderSunset:
		return fmt.Sprintf("Sunset reminder: %s%s", timeStr, locationStr)
	case domain.ReminderCandle:
		return fmt.Sprintf("Candle-lighting reminder: %s%s", timeStr, locationStr)
	case domain.ReminderPrayer:
		return fmt.Sprintf("Prayer time reminder: %s%s", timeStr, locationStr)
	default:
		return fmt.Sprintf("Reminder: %s%s", timeStr, locationStr)
	}
}
