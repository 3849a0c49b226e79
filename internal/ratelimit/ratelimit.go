// Package ratelimit implements the sliding-window per-identity throttle:
// three window scales (minute, hour, day) counted over a timestamp log,
// plus a token-bucket burst guard layered on top. Two window backends
// exist behind one interface: a sharded in-process map, and Redis sorted
// sets for deployments where the limit must hold across instances.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/evalgo/memstore/internal/apperr"
)

// Config holds the per-window ceilings and the burst allowance.
type Config struct {
	PerMinute int
	PerHour   int
	PerDay    int
	Burst     int
	Enabled   bool
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{PerMinute: 60, PerHour: 1000, PerDay: 10000, Burst: 10, Enabled: true}
}

// StrictConfig returns the tightened preset for abuse-prone deployments.
func StrictConfig() Config {
	return Config{PerMinute: 20, PerHour: 200, PerDay: 1000, Burst: 5, Enabled: true}
}

// Window scale names, reported in Decision.Window in check order.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
	WindowBurst  = "burst"
)

// Decision is the outcome of one Check: either allowed with the remaining
// budget of the most-constrained scale, or limited with the time until the
// oldest relevant entry exits its window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	Window     string
}

// windowStore counts and records request timestamps for one client across
// the three scales in a single atomic step.
type windowStore interface {
	// take prunes, checks minute -> hour -> day in order, and appends now
	// when all three scales are under their ceiling. On refusal it reports
	// the first scale to exceed and the oldest timestamp still inside that
	// window.
	take(ctx context.Context, clientID string, now time.Time) (takeResult, error)
	// record appends now unconditionally, for administrative paths that
	// count a request without gating on it.
	record(ctx context.Context, clientID string, now time.Time) error
	// count reports the current number of entries inside each window,
	// without mutating anything.
	count(ctx context.Context, clientID string, now time.Time) (minute, hour, day int, err error)
}

type takeResult struct {
	allowed   bool
	window    string    // limiting scale when refused
	oldest    time.Time // oldest entry inside the limiting window
	remaining int       // min remaining across scales when allowed
	resetAt   time.Time // when the most-constrained window frees a slot
}

// Limiter gates requests per client identity. Check is the middleware
// entrypoint: it records on allow, so check-then-record is one atomic step.
type Limiter struct {
	cfg   Config
	store windowStore

	mu     sync.Mutex
	bursts map[string]*rate.Limiter

	now func() time.Time
}

// New builds a limiter over the in-process sharded store.
func New(cfg Config) *Limiter {
	return newLimiter(cfg, newMemoryStore(cfg))
}

func newLimiter(cfg Config, store windowStore) *Limiter {
	return &Limiter{
		cfg:    cfg,
		store:  store,
		bursts: make(map[string]*rate.Limiter),
		now:    time.Now,
	}
}

// Check applies the three sliding windows and the burst bucket for one
// request. An allowed request is recorded as part of the same call.
func (l *Limiter) Check(ctx context.Context, clientID string) (Decision, error) {
	if !l.cfg.Enabled {
		return Decision{Allowed: true, Limit: l.cfg.PerMinute, Remaining: l.cfg.PerMinute}, nil
	}
	now := l.now()

	if l.cfg.Burst > 0 {
		if d, ok := l.checkBurst(clientID, now); !ok {
			return d, nil
		}
	}

	res, err := l.store.take(ctx, clientID, now)
	if err != nil {
		return Decision{}, err
	}
	if !res.allowed {
		limit, window := l.limitFor(res.window), l.windowFor(res.window)
		retryAfter := res.oldest.Add(window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: retryAfter,
			ResetAt:    res.oldest.Add(window),
			Window:     res.window,
		}, nil
	}
	return Decision{
		Allowed:   true,
		Limit:     l.cfg.PerMinute,
		Remaining: res.remaining,
		ResetAt:   res.resetAt,
	}, nil
}

// Record counts a request against the client without gating on it.
func (l *Limiter) Record(ctx context.Context, clientID string) error {
	return l.store.record(ctx, clientID, l.now())
}

// Stats reports the live window counts for one client, for admin surfaces.
func (l *Limiter) Stats(ctx context.Context, clientID string) (minute, hour, day int, err error) {
	return l.store.count(ctx, clientID, l.now())
}

// checkBurst runs the per-client token bucket. The bucket refills at the
// per-minute rate, so the burst knob only bounds how many of that budget
// may land back to back.
func (l *Limiter) checkBurst(clientID string, now time.Time) (Decision, bool) {
	l.mu.Lock()
	bucket, ok := l.bursts[clientID]
	if !ok {
		bucket = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.cfg.PerMinute)), l.cfg.Burst)
		l.bursts[clientID] = bucket
	}
	l.mu.Unlock()

	reservation := bucket.ReserveN(now, 1)
	if reservation.OK() && reservation.DelayFrom(now) == 0 {
		return Decision{}, true
	}
	retryAfter := time.Second
	if reservation.OK() {
		retryAfter = reservation.DelayFrom(now)
		reservation.CancelAt(now)
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return Decision{
		Allowed:    false,
		Limit:      l.cfg.Burst,
		Remaining:  0,
		RetryAfter: retryAfter,
		ResetAt:    now.Add(retryAfter),
		Window:     WindowBurst,
	}, false
}

func (l *Limiter) limitFor(window string) int {
	switch window {
	case WindowMinute:
		return l.cfg.PerMinute
	case WindowHour:
		return l.cfg.PerHour
	case WindowDay:
		return l.cfg.PerDay
	default:
		return l.cfg.Burst
	}
}

func (l *Limiter) windowFor(window string) time.Duration {
	switch window {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Error surfaced when a Redis-backed store cannot be reached; callers
// treat it as a store failure, never as an implicit allow.
func storeFailure(err error) error {
	return apperr.Database("rate limit store unavailable", err)
}
