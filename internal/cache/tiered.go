package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/metrics"
)

// DefaultFallbackEntries caps the in-process tier of the attachment cache.
const DefaultFallbackEntries = 10

// Tiered combines an optional primary Store (Redis) with an in-process fallback.
// Read path: primary first, fallback on miss or error.
// Write path: primary; fallback only if the primary is absent or failed.
// Errors never escape: a broken cache degrades to a slower pipeline, not a failed one.
type Tiered struct {
	name     string
	primary  Store
	fallback Store
	log      zerolog.Logger
}

// NewTiered creates a two-tier cache. primary may be nil. name labels metrics and logs.
func NewTiered(name string, primary, fallback Store, log zerolog.Logger) *Tiered {
	return &Tiered{
		name:     name,
		primary:  primary,
		fallback: fallback,
		log:      log.With().Str("component", "cache").Str("cache", name).Logger(),
	}
}

// Get returns the cached value and whether it was found.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if t.primary != nil {
		v, err := t.primary.Get(ctx, key)
		switch {
		case err == nil:
			metrics.CacheLookupsTotal.WithLabelValues(t.name, "primary", "hit").Inc()
			return v, true
		case errors.Is(err, ErrMiss):
			metrics.CacheLookupsTotal.WithLabelValues(t.name, "primary", "miss").Inc()
		default:
			metrics.CacheLookupsTotal.WithLabelValues(t.name, "primary", "error").Inc()
			t.log.Warn().Err(err).Str("key", key).Msg("primary cache get failed, using in-process fallback")
		}
	}

	if t.fallback == nil {
		return nil, false
	}
	v, err := t.fallback.Get(ctx, key)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(t.name, "fallback", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues(t.name, "fallback", "hit").Inc()
	return v, true
}

// Set stores value under key. Failures are logged and swallowed.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if t.primary != nil {
		err := t.primary.Set(ctx, key, value, ttl)
		if err == nil {
			t.log.Debug().Str("key", key).Dur("ttl", ttl).Msg("cached")
			return
		}
		t.log.Warn().Err(err).Str("key", key).Msg("primary cache set failed, using in-process fallback")
	}

	if t.fallback == nil {
		return
	}
	if err := t.fallback.Set(ctx, key, value, ttl); err != nil {
		t.log.Debug().Err(err).Str("key", key).Msg("in-process cache did not admit key")
		return
	}
	t.log.Debug().Str("key", key).Msg("cached in-process")
}
