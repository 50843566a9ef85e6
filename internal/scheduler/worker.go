package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
	"github.com/McdWebs/whatsapp-bot/internal/store"
	"github.com/McdWebs/whatsapp-bot/internal/whatsapp"
)

// WorkerStore is the slice of the repository the worker needs.
type WorkerStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetReminder(ctx context.Context, userID string, t domain.ReminderType) (*domain.Reminder, error)
	CreateHistory(ctx context.Context, h *domain.HistoryRecord) error
	UpdateHistoryStatus(ctx context.Context, id, status, errDetail string) error
}

// Messages delivers reminder bodies to users.
type Messages interface {
	SendResponse(ctx context.Context, to, body string) (whatsapp.SendResult, error)
}

// Worker consumes delivery jobs. Each attempt re-checks that the
// definition is still enabled, records a history row, and sends through
// the transport under a global rate ceiling.
type Worker struct {
	repo     WorkerStore
	messages Messages
	limiter  *rate.Limiter
	tz       *time.Location
	log      *zap.Logger
}

// Twilio caps WhatsApp sends well above this; the ceiling protects the
// account from a pathological dispatch burst.
const sendsPerMinute = 100

// NewWorker builds a Worker.
func NewWorker(repo WorkerStore, messages Messages, tz *time.Location, log *zap.Logger) *Worker {
	return &Worker{
		repo:     repo,
		messages: messages,
		limiter:  rate.NewLimiter(rate.Limit(sendsPerMinute)/60, 5),
		tz:       tz,
		log:      log,
	}
}

// Mux returns the task mux routing delivery jobs to this worker.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReminderDeliver, w.ProcessTask)
	return mux
}

// RetryDelay backs off 2s, 4s, 8s between delivery attempts.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return (2 * time.Second) << n
}

// ProcessTask handles one delivery job. Returning an error asks asynq
// to retry; wrapping asynq.SkipRetry discards the job.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job domain.DeliveryJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("decode delivery job: %v: %w", err, asynq.SkipRetry)
	}

	// The definition may have been deleted or disabled between
	// scheduling and now. Stale jobs are discarded, not retried.
	rem, err := w.repo.GetReminder(ctx, job.UserID, job.Type)
	if errors.Is(err, store.ErrNotFound) {
		w.log.Info("reminder gone, discarding job", zap.String("reminder_id", job.ReminderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if !rem.Enabled {
		w.log.Info("reminder disabled, discarding job", zap.String("reminder_id", job.ReminderID))
		return nil
	}

	user, err := w.repo.GetUserByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	hist := &domain.HistoryRecord{
		UserID:   job.UserID,
		Type:     job.Type,
		Status:   domain.DeliveryPending,
		RemindAt: &job.FireAt,
	}
	if err := w.repo.CreateHistory(ctx, hist); err != nil {
		return fmt.Errorf("create history: %w", err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	body := whatsapp.BuildReminderBody(job.Type, bodyTime(&job), job.Location, w.tz)
	res, sendErr := w.messages.SendResponse(ctx, user.Phone, body)
	if sendErr != nil || !res.Success {
		detail := res.Error
		if sendErr != nil {
			detail = sendErr.Error()
		}
		if err := w.repo.UpdateHistoryStatus(ctx, hist.ID, domain.DeliveryFailed, detail); err != nil {
			w.log.Error("update history failed", zap.String("history_id", hist.ID), zap.Error(err))
		}
		w.log.Warn("delivery failed",
			zap.String("reminder_id", job.ReminderID),
			zap.String("user_id", job.UserID),
			zap.String("error", detail),
		)
		if sendErr != nil {
			return fmt.Errorf("send reminder: %w", sendErr)
		}
		return fmt.Errorf("send reminder: %s", detail)
	}

	status := domain.DeliverySent
	if res.Status == whatsapp.StatusDelivered {
		status = domain.DeliveryDelivered
	}
	if err := w.repo.UpdateHistoryStatus(ctx, hist.ID, status, ""); err != nil {
		w.log.Error("update history failed", zap.String("history_id", hist.ID), zap.Error(err))
	}
	w.log.Info("reminder delivered",
		zap.String("reminder_id", job.ReminderID),
		zap.String("user_id", job.UserID),
		zap.String("message_id", res.MessageID),
	)
	return nil
}

// bodyTime picks the instant shown in the message: the calendar event
// for event-derived reminders, the fire time otherwise.
func bodyTime(job *domain.DeliveryJob) time.Time {
	if job.EventAt != nil {
		return *job.EventAt
	}
	return job.FireAt
}
