// Package zmanim resolves the key time points of a calendar day
// (sunset, candle-lighting, prayer windows) for a location, backed by a
// persistent cache over the Hebcal API.
package zmanim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
	"github.com/McdWebs/whatsapp-bot/internal/store"
)

// Cache is the persistence the resolver needs, satisfied by store.Repo.
type Cache interface {
	GetZmanim(ctx context.Context, location, date string) (*domain.Zmanim, error)
	PutZmanim(ctx context.Context, z *domain.Zmanim) error
}

// Upstream fetches a day's events from the calendar provider.
type Upstream interface {
	Fetch(ctx context.Context, location string, date time.Time) (*domain.Zmanim, error)
}

// Resolver is the cache-first time resolver. A provider failure
// propagates to the caller; the resolver never substitutes a guessed
// time for missing data.
type Resolver struct {
	cache    Cache
	upstream Upstream
	log      *zap.Logger
}

// New returns a Resolver over the given cache and upstream client.
func New(cache Cache, upstream Upstream, log *zap.Logger) *Resolver {
	return &Resolver{cache: cache, upstream: upstream, log: log}
}

// Resolve returns the zmanim for (location, date), consulting the cache
// first and refreshing from the upstream provider on a miss.
func (r *Resolver) Resolve(ctx context.Context, location string, date time.Time) (*domain.Zmanim, error) {
	key := domain.DateKey(date)

	cached, err := r.cache.GetZmanim(ctx, location, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("zmanim cache read: %w", err)
	}

	z, err := r.upstream.Fetch(ctx, location, date)
	if err != nil {
		return nil, fmt.Errorf("zmanim resolve %s %s: %w", location, key, err)
	}

	if err := r.cache.PutZmanim(ctx, z); err != nil {
		// The fetched data is still usable this tick; only the cache write failed.
		r.log.Warn("zmanim cache write failed",
			zap.String("location", location),
			zap.String("date", key),
			zap.Error(err),
		)
	}
	return z, nil
}
