// Package availability coordinates the debounced slot-availability checks
// that gate the booking form's submit action.
package availability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Checker answers whether a proposed interval overlaps an existing
// non-cancelled appointment. The REST gateway is the production
// implementation.
type Checker interface {
	CheckAvailability(ctx context.Context, start, end time.Time, excludeAppointmentID string) (bool, error)
}

// CachedChecker wraps a Checker with a short-lived result cache. Failed
// checks are never cached.
type CachedChecker struct {
	inner Checker
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedChecker(inner Checker, cache Cache, ttl time.Duration, log zerolog.Logger) *CachedChecker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CachedChecker{inner: inner, cache: cache, ttl: ttl, log: log}
}

func (c *CachedChecker) CheckAvailability(ctx context.Context, start, end time.Time, excludeAppointmentID string) (bool, error) {
	key := CacheKey(start, end, excludeAppointmentID)

	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		// A broken cache degrades to a direct check.
		c.log.Warn().Err(err).Str("key", key).Msg("availability cache read failed")
	} else if ok {
		return v, nil
	}

	available, err := c.inner.CheckAvailability(ctx, start, end, excludeAppointmentID)
	if err != nil {
		return false, err
	}

	if err := c.cache.Set(ctx, key, available, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
	}
	return available, nil
}
