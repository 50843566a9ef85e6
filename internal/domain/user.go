package domain

import "time"

// State is a step of the reminder setup conversation.
type State string

const (
	StateInitial           State = "INITIAL"
	StateSelectingReminder State = "SELECTING_REMINDER_TYPE"
	StateSelectingTime     State = "SELECTING_TIME"
	StateSelectingTefillin State = "SELECTING_TEFILLIN_TIME"
	StateSelectingLocation State = "SELECTING_LOCATION"
	StateSelectingToDelete State = "SELECTING_REMINDER_TO_DELETE"
	StateConfirmed         State = "CONFIRMED"
)

// IsValid reports whether s is one of the known conversation states.
func (s State) IsValid() bool {
	switch s {
	case StateInitial, StateSelectingReminder, StateSelectingTime,
		StateSelectingTefillin, StateSelectingLocation,
		StateSelectingToDelete, StateConfirmed:
		return true
	default:
		return false
	}
}

// User is one WhatsApp subscriber. A row is created on the first inbound
// message from an unseen phone number and never deleted; unsubscribing
// disables the user's reminders instead.
type User struct {
	ID        string
	Phone     string // normalized E.164-like, e.g. +972501234567
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}
