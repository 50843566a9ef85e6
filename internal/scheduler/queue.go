// Package scheduler turns persisted reminder definitions into delayed
// delivery jobs: a per-minute dispatcher computes fire times and
// enqueues, a Redis-backed queue holds the jobs, and a worker delivers
// them over WhatsApp with bounded retries.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// TypeReminderDeliver is the asynq task type for one delivery job.
const TypeReminderDeliver = "reminder:deliver"

// QueueName is the asynq queue all delivery jobs go through.
const QueueName = "reminders"

// MaxDeliveryRetries bounds transport retries per job.
const MaxDeliveryRetries = 3

// Queue is the delayed job queue the dispatcher feeds and deduplicates
// against.
type Queue interface {
	Enqueue(ctx context.Context, job *domain.DeliveryJob, delay time.Duration) error
	// QueuedJobs returns jobs waiting in the queue, both scheduled and
	// already runnable.
	QueuedJobs(ctx context.Context) ([]domain.DeliveryJob, error)
}

// AsynqQueue is the Redis-backed Queue used in production.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	log       *zap.Logger
}

var _ Queue = (*AsynqQueue)(nil)

// NewAsynqQueue builds a queue over the given Redis connection.
func NewAsynqQueue(redisOpt asynq.RedisClientOpt, log *zap.Logger) *AsynqQueue {
	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		log:       log,
	}
}

// NewDeliveryTask encodes a delivery job as an asynq task.
func NewDeliveryTask(job *domain.DeliveryJob) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReminderDeliver, payload), nil
}

// Enqueue schedules job to run after delay. A non-positive delay runs
// the job immediately.
func (q *AsynqQueue) Enqueue(ctx context.Context, job *domain.DeliveryJob, delay time.Duration) error {
	task, err := NewDeliveryTask(job)
	if err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue(QueueName),
		asynq.MaxRetry(MaxDeliveryRetries),
	)
	if err != nil {
		return err
	}
	q.log.Debug("delivery job enqueued",
		zap.String("task_id", info.ID),
		zap.String("reminder_id", job.ReminderID),
		zap.Time("fire_at", job.FireAt),
		zap.Duration("delay", delay),
	)
	return nil
}

// QueuedJobs lists the delivery jobs currently sitting in the queue.
// An empty queue that asynq has never seen is not an error.
func (q *AsynqQueue) QueuedJobs(ctx context.Context) ([]domain.DeliveryJob, error) {
	var jobs []domain.DeliveryJob
	for _, list := range []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		q.inspector.ListScheduledTasks,
		q.inspector.ListPendingTasks,
	} {
		infos, err := list(QueueName)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, err
		}
		for _, info := range infos {
			if info.Type != TypeReminderDeliver {
				continue
			}
			var job domain.DeliveryJob
			if err := json.Unmarshal(info.Payload, &job); err != nil {
				q.log.Warn("undecodable job in queue", zap.String("task_id", info.ID), zap.Error(err))
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Close releases the underlying Redis connections.
func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.inspector.Close()
}
