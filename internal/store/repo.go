package store

import (
	"context"
	"errors"
	"time"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations for users, reminder definitions,
// delivery history and the zmanim cache.
type Repo interface {
	// Users
	CreateUser(ctx context.Context, phone string) (*domain.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserState(ctx context.Context, id string, state domain.State) error
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Reminders
	UpsertReminder(ctx context.Context, r *domain.Reminder) error
	GetReminder(ctx context.Context, userID string, t domain.ReminderType) (*domain.Reminder, error)
	ListRemindersByUser(ctx context.Context, userID string) ([]domain.Reminder, error)
	ListEnabledReminders(ctx context.Context) ([]domain.Reminder, error)
	DeleteReminder(ctx context.Context, userID string, t domain.ReminderType) error
	DisableAllForUser(ctx context.Context, userID string) error

	// Zmanim cache
	GetZmanim(ctx context.Context, location, date string) (*domain.Zmanim, error)
	PutZmanim(ctx context.Context, z *domain.Zmanim) error

	// Delivery history
	CreateHistory(ctx context.Context, h *domain.HistoryRecord) error
	UpdateHistoryStatus(ctx context.Context, id, status, errDetail string) error
	ListHistoryByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error)
	HistoryStats(ctx context.Context, from, to *time.Time) (domain.DeliveryStats, error)

	Close() error
}
