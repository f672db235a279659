package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"galleria/internal/config"
	"galleria/pkg/utils"
)

const (
	// Rate Limit Rules
	DefaultRequests = 20 // Steady state rate (token refilling speed)
	BurstSize       = 50 // Max burst capacity (bucket size) for traffic spikes

	// Garbage Collection
	VisitorTTL      = 5 * time.Minute // Time before an inactive IP is removed from memory
	CleanupInterval = 3 * time.Minute // Frequency of the cleanup routine
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	code  string
	msg   string

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		code:     utils.ErrRequestRateLimitExceeded,
		msg:      "Too many requests. Please wait a moment.",
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// NewRateLimiterFromConfig converts requests-per-window into a rate.
func NewRateLimiterFromConfig(conf config.RateLimitConfig) *RateLimiter {
	window := config.Duration(conf.Window, time.Second)

	requests := conf.Requests
	if requests <= 0 {
		requests = DefaultRequests
	}
	burst := conf.Burst
	if burst <= 0 {
		burst = BurstSize
	}
	return NewRateLimiter(rate.Limit(float64(requests)/window.Seconds()), burst)
}

// NewLoginLimiter is the strict brute force guard for credential endpoints:
// 1 request/sec, burst 10.
func NewLoginLimiter() *RateLimiter {
	l := NewRateLimiter(1, 10)
	l.code = utils.ErrAuthRateLimitExceed
	l.msg = "Too many login attempts. Please wait."
	return l
}

// Start removes stale visitor entries until ctx is cancelled.
func (l *RateLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *RateLimiter) cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, v := range l.visitors {
		if l.now().Sub(v.lastSeen) > VisitorTTL {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) getVisitor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Allow reports whether ip may make another request now.
func (l *RateLimiter) Allow(ip string) bool {
	return l.getVisitor(ip).Allow()
}

// Middleware blocks excessive requests with a 429 JSON response.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(utils.GetRealIP(r)) {
			utils.WriteError(w, http.StatusTooManyRequests, l.code, l.msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}
