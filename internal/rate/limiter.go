// Package rate provides the fixed-window "N actions per window per subject"
// primitive the login, session, and OTP lifecycles build on.
//
// # Window semantics
//
// Counters are keyed by (scope, subject, window index) where the index is
// floor(now/window). The count comes from the facade's atomic
// increment-with-ttl return value, never from local reads, so clock skew can
// only shift which bucket a call lands in — it cannot lose or double-count
// increments. An over-limit call has still incremented, so the subject stays
// capped for the remainder of the window.
package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/evercart/authguard/internal/cache"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	KeyPrefix string
	// EmergencyFactor divides every limit while emergency mode is active.
	EmergencyFactor int
}

// Result is the outcome of one CheckAndIncrement call.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
}

// Limiter enforces fixed-window limits through the cache facade, so limits
// are shared across process instances while the shared cache is healthy and
// degrade to per-instance during outages.
type Limiter struct {
	facade *cache.Facade
	config Config
	log    *zap.Logger

	// Now is the clock used for window bucketing. Tests may replace it
	// before first use.
	Now func() time.Time
}

// emergencyKey derives the shared emergency flag key from the configured
// prefix, so limiters with distinct prefixes keep distinct flags.
func (l *Limiter) emergencyKey() string {
	return l.config.KeyPrefix + ":emergency"
}

// New creates a Limiter over the given facade.
func New(facade *cache.Facade, cfg Config, log *zap.Logger) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "arl"
	}
	if cfg.EmergencyFactor <= 0 {
		cfg.EmergencyFactor = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		facade: facade,
		config: cfg,
		log:    log,
		Now:    time.Now,
	}
}

// CheckAndIncrement counts one action for (scope, subject) in the current
// window and reports whether it stayed within limit. The increment happens
// regardless of the outcome: a blocked caller gets no free retries.
func (l *Limiter) CheckAndIncrement(ctx context.Context, scope, subject string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, fmt.Errorf("rate: limit and window must be positive (limit=%d window=%s)", limit, window)
	}

	effective := l.effectiveLimit(ctx, limit)

	now := l.Now()
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	idx := now.Unix() / windowSecs
	resetAfter := time.Duration(windowSecs-(now.Unix()%windowSecs)) * time.Second

	key := fmt.Sprintf("%s:%s:%s:%d", l.config.KeyPrefix, scope, subject, idx)
	count, err := l.facade.IncrWithTTL(ctx, key, resetAfter)
	if err != nil {
		return Result{}, err
	}

	remaining := effective - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(effective) {
		l.log.Debug("rate limit exceeded",
			zap.String("scope", scope),
			zap.String("subject", subject),
			zap.Int64("count", count),
			zap.Int("limit", effective))
		return Result{Allowed: false, Remaining: 0, ResetAfter: resetAfter}, nil
	}

	return Result{Allowed: true, Remaining: remaining, ResetAfter: resetAfter}, nil
}

// EnableEmergency tightens all limits by the configured factor until ttl
// elapses or DisableEmergency is called. The flag lives in the shared cache,
// so every process instance tightens together.
func (l *Limiter) EnableEmergency(ctx context.Context, ttl time.Duration) error {
	l.log.Warn("emergency rate limiting enabled", zap.Duration("ttl", ttl))
	return l.facade.Set(ctx, l.emergencyKey(), "1", ttl)
}

// DisableEmergency clears the emergency flag.
func (l *Limiter) DisableEmergency(ctx context.Context) error {
	l.log.Info("emergency rate limiting disabled")
	return l.facade.Delete(ctx, l.emergencyKey())
}

// EmergencyActive reports whether the shared emergency flag is set.
func (l *Limiter) EmergencyActive(ctx context.Context) bool {
	_, found, _ := l.facade.Get(ctx, l.emergencyKey())
	return found
}

func (l *Limiter) effectiveLimit(ctx context.Context, limit int) int {
	if !l.EmergencyActive(ctx) {
		return limit
	}
	tightened := limit / l.config.EmergencyFactor
	if tightened < 1 {
		tightened = 1
	}
	return tightened
}

// Peek returns the current count for (scope, subject) without incrementing.
// Missing counters read as zero.
func (l *Limiter) Peek(ctx context.Context, scope, subject string, window time.Duration) (int64, error) {
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	idx := l.Now().Unix() / windowSecs

	key := fmt.Sprintf("%s:%s:%s:%d", l.config.KeyPrefix, scope, subject, idx)
	value, found, err := l.facade.Get(ctx, key)
	if err != nil || !found {
		return 0, err
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return count, nil
}
