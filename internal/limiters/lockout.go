// Package limiters holds the domain-specific throttling policies built on
// the generic rate primitive and the cache facade: login lockouts and OTP
// issuance guards.
package limiters

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/evercart/authguard/internal/backoff"
	"github.com/evercart/authguard/internal/cache"
)

// LockoutConfig holds configuration for the per-account login lockout.
type LockoutConfig struct {
	// FailureThreshold locks the subject once this many failures land
	// within FailureWindow.
	FailureThreshold int
	FailureWindow    time.Duration
	// LockBase is the first lock duration; repeat locks double it up to
	// LockMax.
	LockBase time.Duration
	LockMax  time.Duration
	// HistoryTTL bounds how long past locks keep escalating new ones.
	HistoryTTL time.Duration
}

// LockoutLimiter tracks failed login attempts per (account, source) pair
// and locks the pair out with exponentially growing duration. All state
// lives behind the cache facade, so lockouts are shared across instances
// while the shared cache is healthy.
type LockoutLimiter struct {
	facade *cache.Facade
	config LockoutConfig
	policy backoff.Policy
	log    *zap.Logger

	// Now is the lockout clock. Tests may replace it before first use.
	Now func() time.Time
}

// NewLockoutLimiter creates a lockout limiter over the facade.
func NewLockoutLimiter(facade *cache.Facade, cfg LockoutConfig, log *zap.Logger) *LockoutLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LockoutLimiter{
		facade: facade,
		config: cfg,
		policy: backoff.Policy{Base: cfg.LockBase, Multiplier: 2, Max: cfg.LockMax},
		log:    log,
		Now:    time.Now,
	}
}

func (l *LockoutLimiter) failKey(account, source string) string {
	return "alf:" + account + ":" + source
}

func (l *LockoutLimiter) lockKey(account, source string) string {
	return "all:" + account + ":" + source
}

func (l *LockoutLimiter) histKey(account, source string) string {
	return "alh:" + account + ":" + source
}

// LockedUntil returns the lock deadline for the pair, if one is active.
func (l *LockoutLimiter) LockedUntil(ctx context.Context, account, source string) (time.Time, bool) {
	value, found, err := l.facade.Get(ctx, l.lockKey(account, source))
	if err != nil || !found {
		return time.Time{}, false
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	until := time.Unix(unix, 0)
	if !until.After(l.Now()) {
		return time.Time{}, false
	}
	return until, true
}

// RecordFailure counts one failed attempt. Crossing the threshold locks the
// pair and returns the lock duration; the failure counter resets so the
// next round starts clean after the lock expires.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, account, source string) (count int64, lockedFor time.Duration, err error) {
	count, err = l.facade.IncrWithTTL(ctx, l.failKey(account, source), l.config.FailureWindow)
	if err != nil {
		return 0, 0, err
	}

	if count < int64(l.config.FailureThreshold) {
		return count, 0, nil
	}

	history, err := l.facade.IncrWithTTL(ctx, l.histKey(account, source), l.config.HistoryTTL)
	if err != nil {
		return count, 0, err
	}

	lockedFor = l.policy.Delay(int(history - 1))
	until := l.Now().Add(lockedFor)

	if err := l.facade.Set(ctx, l.lockKey(account, source),
		strconv.FormatInt(until.Unix(), 10), lockedFor); err != nil {
		return count, 0, err
	}
	if err := l.facade.Delete(ctx, l.failKey(account, source)); err != nil {
		return count, lockedFor, err
	}

	l.log.Info("login lockout engaged",
		zap.String("account", account),
		zap.String("source", source),
		zap.Int64("history", history),
		zap.Duration("duration", lockedFor))

	return count, lockedFor, nil
}

// Reset clears the failure counter and any active lock, in one facade call
// so a successful authentication cannot leave a half-cleared record.
func (l *LockoutLimiter) Reset(ctx context.Context, account, source string) error {
	return l.facade.Delete(ctx, l.failKey(account, source), l.lockKey(account, source))
}

// FailureCount returns the current windowed failure count for the pair.
func (l *LockoutLimiter) FailureCount(ctx context.Context, account, source string) int64 {
	value, found, err := l.facade.Get(ctx, l.failKey(account, source))
	if err != nil || !found {
		return 0
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return count
}
