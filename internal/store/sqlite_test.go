package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "+972501234567")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.State != domain.StateInitial {
		t.Fatalf("new user state = %s, want INITIAL", u.State)
	}

	got, err := repo.GetUserByPhone(ctx, "+972501234567")
	if err != nil {
		t.Fatalf("get by phone: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("id mismatch: %s vs %s", got.ID, u.ID)
	}

	if err := repo.UpdateUserState(ctx, u.ID, domain.StateConfirmed); err != nil {
		t.Fatalf("update state: %v", err)
	}
	got, err = repo.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.State != domain.StateConfirmed {
		t.Fatalf("state = %s, want CONFIRMED", got.State)
	}

	if _, err := repo.GetUserByPhone(ctx, "+972000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	n, err := repo.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count = %d (%v), want 1", n, err)
	}
}

func TestReminderUpsertAndRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "+972501234567")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rem := &domain.Reminder{
		UserID:   u.ID,
		Type:     domain.ReminderCustom,
		Time:     "18:30",
		Location: "Jerusalem",
		Enabled:  true,
	}
	if err := repo.UpsertReminder(ctx, rem); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Round-trip: the stored clock time survives exactly.
	got, err := repo.GetReminder(ctx, u.ID, domain.ReminderCustom)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if got.Time != "18:30" {
		t.Fatalf("time round-trip: want 18:30, got %q", got.Time)
	}

	// Upserting again replaces rather than duplicates.
	rem2 := &domain.Reminder{
		UserID:   u.ID,
		Type:     domain.ReminderCustom,
		Time:     "07:00",
		Location: "Jerusalem",
		Enabled:  true,
	}
	if err := repo.UpsertReminder(ctx, rem2); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	all, err := repo.ListRemindersByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("want 1 reminder after upsert, got %d", len(all))
	}
	if all[0].Time != "07:00" {
		t.Fatalf("want updated time 07:00, got %q", all[0].Time)
	}
}

func TestDisableAllForUser(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "+972501234567")
	other, _ := repo.CreateUser(ctx, "+972507654321")

	for _, rem := range []*domain.Reminder{
		{UserID: u.ID, Type: domain.ReminderTefillin, OffsetMinutes: 30, Location: "Jerusalem", Enabled: true},
		{UserID: u.ID, Type: domain.ReminderCustom, Time: "18:30", Location: "Jerusalem", Enabled: true},
		{UserID: other.ID, Type: domain.ReminderSunset, Location: "Haifa", Enabled: true},
	} {
		if err := repo.UpsertReminder(ctx, rem); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := repo.DisableAllForUser(ctx, u.ID); err != nil {
		t.Fatalf("disable all: %v", err)
	}

	enabled, err := repo.ListEnabledReminders(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].UserID != other.ID {
		t.Fatalf("want only the other user's reminder enabled, got %+v", enabled)
	}

	// Definitions are disabled, not deleted.
	all, _ := repo.ListRemindersByUser(ctx, u.ID)
	if len(all) != 2 {
		t.Fatalf("want 2 kept definitions, got %d", len(all))
	}
}

func TestZmanimCache(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetZmanim(ctx, "Jerusalem", "2025-06-10"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound on miss, got %v", err)
	}

	sunset := time.Date(2025, time.June, 10, 16, 45, 0, 0, time.UTC)
	z := &domain.Zmanim{Location: "Jerusalem", Date: "2025-06-10", Sunset: &sunset}
	if err := repo.PutZmanim(ctx, z); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetZmanim(ctx, "Jerusalem", "2025-06-10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sunset == nil || !got.Sunset.Equal(sunset) {
		t.Fatalf("sunset mismatch: %v", got.Sunset)
	}
	if got.CandleLighting != nil {
		t.Fatal("absent field must stay nil")
	}
}

func TestHistoryStats(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	h := &domain.HistoryRecord{UserID: "u1", Type: domain.ReminderTefillin, Status: domain.DeliveryPending}
	if err := repo.CreateHistory(ctx, h); err != nil {
		t.Fatalf("create history: %v", err)
	}
	if err := repo.UpdateHistoryStatus(ctx, h.ID, domain.DeliverySent, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	h2 := &domain.HistoryRecord{UserID: "u1", Type: domain.ReminderCustom, Status: domain.DeliveryFailed, Error: "boom"}
	if err := repo.CreateHistory(ctx, h2); err != nil {
		t.Fatalf("create history: %v", err)
	}

	stats, err := repo.HistoryStats(ctx, nil, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	list, err := repo.ListHistoryByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 records, got %d", len(list))
	}
}
