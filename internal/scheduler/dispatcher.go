package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// Definitions is the slice of the repository the dispatcher reads.
type Definitions interface {
	ListEnabledReminders(ctx context.Context) ([]domain.Reminder, error)
}

// Resolver looks up halachic times for a location and date.
type Resolver interface {
	Resolve(ctx context.Context, location string, date time.Time) (*domain.Zmanim, error)
}

// Dispatcher scans enabled reminder definitions once a minute, computes
// each one's next fire time, and enqueues a delivery job for every
// definition due in the current tick. Jobs already sitting in the queue
// for the same occurrence are skipped, so a restart or an overlapping
// tick never produces duplicates.
type Dispatcher struct {
	defs            Definitions
	queue           Queue
	resolver        Resolver
	tz              *time.Location
	defaultLocation string
	log             *zap.Logger

	now func() time.Time
}

// NewDispatcher builds a Dispatcher. tz anchors fixed HH:MM reminders;
// defaultLocation backs definitions saved without one.
func NewDispatcher(defs Definitions, queue Queue, resolver Resolver, defaultLocation string, tz *time.Location, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		defs:            defs,
		queue:           queue,
		resolver:        resolver,
		tz:              tz,
		defaultLocation: defaultLocation,
		log:             log,
		now:             time.Now,
	}
}

// Run ticks every minute until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("dispatcher started")
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := d.now()

	rems, err := d.defs.ListEnabledReminders(ctx)
	if err != nil {
		d.log.Error("list reminders failed", zap.Error(err))
		return
	}
	if len(rems) == 0 {
		return
	}

	queued, err := d.queue.QueuedJobs(ctx)
	if err != nil {
		// Without the queue listing every due reminder would double up,
		// and the next tick will catch anything skipped now.
		d.log.Error("queue inspection failed, skipping tick", zap.Error(err))
		return
	}

	enqueued := 0
	for i := range rems {
		r := &rems[i]
		fire, eventAt, ok := d.nextFireTime(ctx, r, now)
		if !ok || !domain.DueThisTick(fire, now) {
			continue
		}
		if hasSameOccurrence(queued, r.ID, fire) {
			continue
		}

		job := &domain.DeliveryJob{
			UserID:        r.UserID,
			ReminderID:    r.ID,
			Type:          r.Type,
			FireAt:        fire,
			Location:      d.locationOf(r),
			OffsetMinutes: r.OffsetMinutes,
			EventAt:       eventAt,
		}
		if err := d.queue.Enqueue(ctx, job, fire.Sub(now)); err != nil {
			d.log.Error("enqueue failed",
				zap.String("reminder_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		d.log.Info("dispatch tick", zap.Int("enqueued", enqueued), zap.Int("definitions", len(rems)))
	}
}

// nextFireTime computes when the reminder fires next, plus the calendar
// event instant it derives from, if any. ok is false when the day's
// zmanim data is missing or the stored definition is unusable.
func (d *Dispatcher) nextFireTime(ctx context.Context, r *domain.Reminder, now time.Time) (time.Time, *time.Time, bool) {
	switch {
	case r.HasFixedClock():
		hour, minute, err := domain.ParseClockTime(r.Time)
		if err != nil {
			d.log.Warn("unparseable stored time",
				zap.String("reminder_id", r.ID),
				zap.String("time", r.Time),
			)
			return time.Time{}, nil, false
		}
		return domain.FixedFireTime(now, hour, minute, d.tz), nil, true

	case r.Type == domain.ReminderTefillin:
		sunset, ok := d.eventAt(ctx, r, domain.ReminderSunset, now)
		if !ok {
			return time.Time{}, nil, false
		}
		return domain.OffsetFireTime(*sunset, r.OffsetMinutes), sunset, true

	case r.Type.IsEvent():
		ev, ok := d.eventAt(ctx, r, r.Type, now)
		if !ok {
			return time.Time{}, nil, false
		}
		return *ev, ev, true

	default:
		d.log.Warn("definition with no usable schedule", zap.String("reminder_id", r.ID))
		return time.Time{}, nil, false
	}
}

func (d *Dispatcher) eventAt(ctx context.Context, r *domain.Reminder, t domain.ReminderType, now time.Time) (*time.Time, bool) {
	z, err := d.resolver.Resolve(ctx, d.locationOf(r), now.In(d.tz))
	if err != nil {
		d.log.Warn("zmanim lookup failed",
			zap.String("reminder_id", r.ID),
			zap.String("location", d.locationOf(r)),
			zap.Error(err),
		)
		return nil, false
	}
	ev := z.EventTime(t)
	if ev == nil {
		return nil, false
	}
	return ev, true
}

func (d *Dispatcher) locationOf(r *domain.Reminder) string {
	if r.Location != "" {
		return r.Location
	}
	return d.defaultLocation
}

func hasSameOccurrence(queued []domain.DeliveryJob, reminderID string, fire time.Time) bool {
	for i := range queued {
		if queued[i].ReminderID == reminderID && domain.SameOccurrence(queued[i].FireAt, fire) {
			return true
		}
	}
	return false
}
