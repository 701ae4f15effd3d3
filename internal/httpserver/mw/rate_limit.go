package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
	"github.com/MrSnakeDoc/breachwatch/internal/utils"
)

// RateLimitConfig sizes the token buckets. MaxEntries > 0 sweeps idle
// buckets early once that many clients are tracked. Key defaults to the
// client IP, read from proxy headers when TrustProxy is set.
type RateLimitConfig struct {
	Burst           int
	RefillPerMinute int
	MaxEntries      int
	IdleTTL         time.Duration
	SweepInterval   time.Duration
	TrustProxy      bool
	Key             func(r *http.Request) string
	Now             func() time.Time
}

type bucket struct {
	tokens   float64
	updated  time.Time
	lastSeen time.Time
}

// decision is the outcome of one take.
type decision struct {
	allowed    bool
	remaining  int
	retryAfter int // seconds
}

// tokenBuckets keeps one bucket per key behind a single lock.
type tokenBuckets struct {
	cfg       RateLimitConfig
	perSecond float64
	capacity  float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newTokenBuckets(cfg RateLimitConfig) *tokenBuckets {
	cfg.Burst = max(cfg.Burst, 1)
	cfg.RefillPerMinute = max(cfg.RefillPerMinute, 1)
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Key == nil {
		trust := cfg.TrustProxy
		cfg.Key = func(r *http.Request) string { return utils.ClientIP(r, trust) }
	}
	return &tokenBuckets{
		cfg:       cfg,
		perSecond: float64(cfg.RefillPerMinute) / 60.0,
		capacity:  float64(cfg.Burst),
		buckets:   make(map[string]*bucket),
		lastSweep: cfg.Now(),
	}
}

func (tb *tokenBuckets) take(key string, now time.Time) decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if now.Sub(tb.lastSweep) >= tb.cfg.SweepInterval ||
		(tb.cfg.MaxEntries > 0 && len(tb.buckets) >= tb.cfg.MaxEntries) {
		tb.sweep(now)
	}

	b := tb.buckets[key]
	if b == nil {
		b = &bucket{tokens: tb.capacity, updated: now}
		tb.buckets[key] = b
	}
	if elapsed := now.Sub(b.updated).Seconds(); elapsed > 0 {
		b.tokens = math.Min(tb.capacity, b.tokens+elapsed*tb.perSecond)
		b.updated = now
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return decision{allowed: true, remaining: int(b.tokens)}
	}
	wait := int(math.Ceil((1 - b.tokens) / tb.perSecond))
	return decision{retryAfter: max(wait, 1)}
}

func (tb *tokenBuckets) sweep(now time.Time) {
	for k, b := range tb.buckets {
		if now.Sub(b.lastSeen) > tb.cfg.IdleTTL {
			delete(tb.buckets, k)
		}
	}
	tb.lastSweep = now
}

// RateLimit throttles requests per key with a token bucket: Burst requests
// up front, then RefillPerMinute per minute. Rejected requests get a 429
// with Retry-After.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	tb := newTokenBuckets(cfg)
	limit := strconv.Itoa(tb.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := tb.take(tb.cfg.Key(r), tb.cfg.Now())

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			if !d.allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.retryAfter))
				respond.Fail(w, apperr.New(apperr.CodeRateLimited, "Too many attempts. Please try again later.", http.StatusTooManyRequests).
					WithDetail("retry_after_seconds", d.retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
