package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyTime   = errors.New("empty time")
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")
)

// ParseClockTime parses a strict 24-hour "HH:MM" (zero-padded or not,
// minutes 00-59). Anything else is rejected so the conversation can
// re-prompt instead of guessing.
func ParseClockTime(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, ErrEmptyTime
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidTime, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidTime, s)
	}
	return hour, minute, nil
}

// FormatClockTime renders hour/minute back to the canonical zero-padded
// "HH:MM" stored on fixed reminders.
func FormatClockTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// NormalizePhone reduces a transport phone value (possibly with a
// "whatsapp:" prefix, spaces or dashes) to +<digits>. Numbers without a
// country code default to Israel (+972), dropping a leading 0.
func NormalizePhone(raw string) string {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:")

	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return s
	}
	if !strings.HasPrefix(s, "+") {
		s = strings.TrimPrefix(s, "0")
		s = "+972" + s
	}
	return s
}

// Command tokens recognized in any conversation state, in English and
// Hebrew.
var (
	helpTokens = []string{"HELP", "עזרה"}
	stopTokens = []string{"STOP", "UNSUBSCRIBE", "ביטול"}
)

// IsHelp reports whether the message is a help request.
func IsHelp(text string) bool {
	return matchesToken(text, helpTokens)
}

// IsStop reports whether the message is an unsubscribe request.
func IsStop(text string) bool {
	return matchesToken(text, stopTokens)
}

func matchesToken(text string, tokens []string) bool {
	up := strings.ToUpper(strings.TrimSpace(text))
	for _, t := range tokens {
		if up == t {
			return true
		}
	}
	return false
}
