package domain

import (
	"testing"
	"time"
)

func jerusalem(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func TestFixedFireTime_TodayAndTomorrow(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, loc)

	fire := FixedFireTime(now, 18, 30, loc)
	if fire.Day() != 10 || fire.Hour() != 18 || fire.Minute() != 30 {
		t.Fatalf("want today 18:30, got %v", fire)
	}

	// Already past: rolls to tomorrow at the same HH:MM.
	fire = FixedFireTime(now, 9, 0, loc)
	if fire.Day() != 11 || fire.Hour() != 9 || fire.Minute() != 0 {
		t.Fatalf("want tomorrow 09:00, got %v", fire)
	}

	// Seconds into the fire minute it is still today's occurrence.
	now = time.Date(2025, time.June, 10, 18, 30, 12, 0, loc)
	fire = FixedFireTime(now, 18, 30, loc)
	if fire.Day() != 10 {
		t.Fatalf("mid-minute must stay today, got %v", fire)
	}
}

func TestOffsetFireTime(t *testing.T) {
	loc := jerusalem(t)
	sunset := time.Date(2025, time.June, 10, 18, 5, 0, 0, loc)
	fire := OffsetFireTime(sunset, 20)
	if fire.Hour() != 17 || fire.Minute() != 45 {
		t.Fatalf("want 17:45, got %v", fire)
	}
}

func TestDueThisTick(t *testing.T) {
	loc := jerusalem(t)
	fire := time.Date(2025, time.June, 10, 17, 45, 0, 0, loc)

	// Boundary inclusive: a fire time at the very start of the minute.
	now := time.Date(2025, time.June, 10, 17, 45, 30, 0, loc)
	if !DueThisTick(fire, now) {
		t.Fatal("fire within the current minute must be due")
	}

	// One minute later it is no longer due.
	now = time.Date(2025, time.June, 10, 17, 46, 0, 0, loc)
	if DueThisTick(fire, now) {
		t.Fatal("past fire must not be due")
	}

	// Tomorrow at the same minute-of-day must not match today's tick.
	tomorrow := fire.AddDate(0, 0, 1)
	now = time.Date(2025, time.June, 10, 17, 45, 10, 0, loc)
	if DueThisTick(tomorrow, now) {
		t.Fatal("next-day occurrence must not be due today")
	}
}

func TestSameOccurrence(t *testing.T) {
	loc := jerusalem(t)
	a := time.Date(2025, time.June, 10, 17, 45, 0, 0, loc)
	if !SameOccurrence(a, a.Add(30*time.Second)) {
		t.Fatal("30s apart is the same occurrence")
	}
	if SameOccurrence(a, a.Add(2*time.Minute)) {
		t.Fatal("2m apart is a different occurrence")
	}
}
