package geocode

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"galleria/pkg/cache"
	"galleria/pkg/logger"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultCacheTTL = 24 * time.Hour
)

type Options struct {
	Enabled       bool
	Timeout       time.Duration
	RatePerSecond float64
	CacheTTL      time.Duration
}

// Geocoder wraps a Provider with caching, request coalescing and an outbound
// rate limit. Resolve never fails.
type Geocoder struct {
	provider Provider
	cache    *cache.MemoryCache
	group    singleflight.Group
	limiter  *rate.Limiter

	enabled bool
	timeout time.Duration
	ttl     time.Duration
}

// New builds a Geocoder. c may be nil, which disables result caching.
func New(p Provider, c *cache.MemoryCache, opts Options) *Geocoder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Geocoder{
		provider: p,
		cache:    c,
		limiter:  rate.NewLimiter(limit, 1),
		enabled:  opts.Enabled && p != nil,
		timeout:  opts.Timeout,
		ttl:      opts.CacheTTL,
	}
}

// Enabled reports whether lookups go to a provider.
func (g *Geocoder) Enabled() bool {
	return g != nil && g.enabled
}

// Resolve returns a place caption for the coordinates. Without a provider
// answer it returns the display name, and failing that "lat, lon" with four
// decimals.
func (g *Geocoder) Resolve(ctx context.Context, lat, lon float64) string {
	fallback := fmt.Sprintf("%.4f, %.4f", lat, lon)
	if !g.Enabled() {
		return fallback
	}

	key := "geo:" + fallback
	if cached, ok := g.cache.Get(key); ok {
		return string(cached)
	}

	v, err, shared := g.group.Do(key, func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		if err := g.limiter.Wait(lookupCtx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		place, err := g.provider.Reverse(lookupCtx, lat, lon)
		if err != nil {
			return nil, err
		}

		caption := fallback
		if place != nil {
			if composed := Compose(place.Address); composed != "" {
				caption = composed
			} else if place.DisplayName != "" {
				caption = place.DisplayName
			}
		}

		g.cache.SetWithTTL(key, []byte(caption), g.ttl)
		return caption, nil
	})
	if err != nil {
		logger.LogWarn("Geocode: lookup for %s failed: %v", fallback, err)
		return fallback
	}

	if shared {
		logger.LogDebug("Geocode: coalesced lookup for %s", fallback)
	}
	return v.(string)
}
