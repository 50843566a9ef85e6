package domain

import "time"

// FixedFireTime returns the next occurrence of hour:minute in loc:
// today unless that minute has fully passed, otherwise tomorrow. The
// comparison is at minute granularity so a tick a few seconds into the
// fire minute still sees today's occurrence.
func FixedFireTime(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if fire.Before(now.Truncate(time.Minute)) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}

// OffsetFireTime returns the instant offsetMinutes before event.
func OffsetFireTime(event time.Time, offsetMinutes int) time.Time {
	return event.Add(-time.Duration(offsetMinutes) * time.Minute)
}

// DueThisTick reports whether fire falls inside the dispatch window
// [now, now+1m) at minute granularity. Comparing truncated instants
// rather than minute-of-day keeps tomorrow's occurrence from matching
// today's tick.
func DueThisTick(fire, now time.Time) bool {
	return fire.Truncate(time.Minute).Equal(now.Truncate(time.Minute))
}
