package domain

import "time"

// DeliveryJob is one scheduled delivery occurrence. Created by the
// dispatcher, consumed by the worker, never updated in place.
type DeliveryJob struct {
	UserID        string       `json:"user_id"`
	ReminderID    string       `json:"reminder_id"`
	Type          ReminderType `json:"reminder_type"`
	FireAt        time.Time    `json:"fire_at"`
	Location      string       `json:"location"`
	OffsetMinutes int          `json:"offset_minutes,omitempty"`
	EventAt       *time.Time   `json:"event_at,omitempty"` // sunset the fire time was computed from
}

// SameOccurrence reports whether two fire times refer to the same
// occurrence of a reminder. The dispatcher recomputes fire times every
// tick, so small drift (sunset re-resolution, second truncation) must
// not count as a new occurrence.
func SameOccurrence(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < time.Minute
}
