package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// syncHour is the local hour the daily cache pre-warm runs at. Early
// morning, after Hebcal has the new day's data and before any reminder
// can plausibly fire.
const syncHour = 2

// Syncer pre-warms the zmanim cache every night for every location that
// has an enabled reminder, so the per-minute dispatcher almost never
// hits the upstream API on the hot path.
type Syncer struct {
	defs            Definitions
	resolver        Resolver
	defaultLocation string
	tz              *time.Location
	log             *zap.Logger

	now func() time.Time
}

// NewSyncer builds a Syncer.
func NewSyncer(defs Definitions, resolver Resolver, defaultLocation string, tz *time.Location, log *zap.Logger) *Syncer {
	return &Syncer{
		defs:            defs,
		resolver:        resolver,
		defaultLocation: defaultLocation,
		tz:              tz,
		log:             log,
		now:             time.Now,
	}
}

// Run syncs once at startup and then daily at syncHour until ctx is
// cancelled.
func (s *Syncer) Run(ctx context.Context) {
	s.SyncOnce(ctx)

	for {
		wait := time.Until(nextDailyRun(s.now().In(s.tz), syncHour))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("zmanim sync stopped")
			return
		case <-timer.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce resolves today's and tomorrow's zmanim for every active
// location. The resolver writes through to the cache; failures are
// logged and left for the dispatcher's on-demand lookup to retry.
func (s *Syncer) SyncOnce(ctx context.Context) {
	locations := map[string]struct{}{s.defaultLocation: {}}
	rems, err := s.defs.ListEnabledReminders(ctx)
	if err != nil {
		s.log.Error("list reminders failed, syncing default location only", zap.Error(err))
	}
	for i := range rems {
		if rems[i].Location != "" {
			locations[rems[i].Location] = struct{}{}
		}
	}

	now := s.now().In(s.tz)
	synced := 0
	for location := range locations {
		for _, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
			if _, err := s.resolver.Resolve(ctx, location, day); err != nil {
				s.log.Warn("zmanim sync failed",
					zap.String("location", location),
					zap.String("date", domain.DateKey(day)),
					zap.Error(err),
				)
				continue
			}
			synced++
		}
	}
	s.log.Info("zmanim sync complete",
		zap.Int("locations", len(locations)),
		zap.Int("days_synced", synced),
	)
}

// nextDailyRun returns the next occurrence of hour:00 strictly after
// now, in now's location.
func nextDailyRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
