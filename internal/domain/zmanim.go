package domain

import "time"

// DateKey formats a date as the cache key used for zmanim lookups.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Zmanim are the key instants of one calendar day at one location.
// Any field may be nil: a given day/location can lack candle-lighting
// or prayer listings, and callers must treat missing data as
// "cannot schedule yet" rather than substitute a guess.
type Zmanim struct {
	Location       string
	Date           string // YYYY-MM-DD
	Sunset         *time.Time
	CandleLighting *time.Time
	Shacharit      *time.Time
	Mincha         *time.Time
	Maariv         *time.Time
}

// EventTime returns the instant a given event-type reminder fires at,
// or nil when the day's data lacks it. Prayer reminders default to
// mincha.
func (z *Zmanim) EventTime(t ReminderType) *time.Time {
	switch t {
	case ReminderSunset:
		return z.Sunset
	case ReminderCandle:
		return z.CandleLighting
	case ReminderPrayer:
		return z.Mincha
	default:
		return nil
	}
}
