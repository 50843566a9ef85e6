package domain

import "time"

// ReminderType identifies what a reminder is anchored to.
type ReminderType string

const (
	ReminderTefillin ReminderType = "tefillin" // offset before sunset
	ReminderCustom   ReminderType = "custom"   // fixed clock time
	ReminderSunset   ReminderType = "sunset"
	ReminderCandle   ReminderType = "candle"
	ReminderPrayer   ReminderType = "prayer"
)

// IsValid reports whether t is a known reminder type.
func (t ReminderType) IsValid() bool {
	switch t {
	case ReminderTefillin, ReminderCustom, ReminderSunset, ReminderCandle, ReminderPrayer:
		return true
	default:
		return false
	}
}

// IsEvent reports whether t fires at a daily calendar event rather than
// a clock time.
func (t ReminderType) IsEvent() bool {
	switch t {
	case ReminderSunset, ReminderCandle, ReminderPrayer:
		return true
	default:
		return false
	}
}

// Label returns the human-facing name used in menus and confirmations.
func (t ReminderType) Label() string {
	switch t {
	case ReminderTefillin:
		return "Tefillin Reminder"
	case ReminderCustom:
		return "Custom Reminder"
	case ReminderSunset:
		return "Sunset Reminder"
	case ReminderCandle:
		return "Candle Lighting Reminder"
	case ReminderPrayer:
		return "Prayer Reminder"
	default:
		return string(t)
	}
}

// Reminder is a persisted reminder definition. At most one enabled
// definition exists per (user, type); creation upserts.
type Reminder struct {
	ID            string
	UserID        string
	Type          ReminderType
	Time          string // "HH:MM" for custom, or a tefillin override; empty otherwise
	Location      string
	Enabled       bool
	OffsetMinutes int        // minutes before sunset; tefillin only, 0 when Time is set
	SunsetAt      *time.Time // last resolved sunset, denormalized
	RemindAt      *time.Time // last computed fire time, denormalized
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasFixedClock reports whether the reminder fires at a stored HH:MM
// rather than a resolved event instant.
func (r *Reminder) HasFixedClock() bool {
	return r.Time != ""
}
