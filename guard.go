package authguard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evercart/authguard/internal/cache"
	"github.com/evercart/authguard/internal/fallback"
	"github.com/evercart/authguard/internal/health"
	"github.com/evercart/authguard/internal/limiters"
	"github.com/evercart/authguard/internal/pool"
	"github.com/evercart/authguard/internal/rate"
	"github.com/evercart/authguard/internal/stores"
	"github.com/evercart/authguard/session"
)

// Guard is the process-wide authentication-resilience core. One instance
// owns the connection pool, fallback store, and circuit-breaking facade;
// everything else in the serving process calls through it.
type Guard struct {
	config Config
	log    *zap.Logger

	events   *health.Dispatcher
	pool     *pool.Pool
	fb       *fallback.Store
	facade   *cache.Facade
	limiter  *rate.Limiter
	lockouts *limiters.LockoutLimiter
	otpGuard *limiters.OTPGuard
	sessions *session.Store
	otps     *stores.OTPStore
	metrics  *metricsRegistry

	now       func() time.Time
	closed    atomic.Bool
	closeOnce sync.Once
}

// checkOpen gates every operation once Close has run.
func (g *Guard) checkOpen() error {
	if g.closed.Load() {
		return ErrGuardClosed
	}
	return nil
}

// Close stops the probe loop and the event dispatcher. The redis client
// passed to the Builder stays open; its owner closes it.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		g.pool.Close()
		g.events.Close()
	})
}

// Degraded reports whether the guard is currently serving from the
// in-process fallback store.
func (g *Guard) Degraded() bool {
	return g.facade.Degraded()
}

// Health snapshots the resilience layer for operational endpoints.
func (g *Guard) Health() HealthReport {
	stats := g.facade.Stats()
	return HealthReport{
		CacheHealthy:  g.pool.Healthy(),
		CircuitState:  stats.CircuitState,
		Degraded:      g.facade.Degraded(),
		FallbackItems: g.fb.ItemCount(),
		EventsDropped: g.events.Dropped(),
	}
}

// EnableEmergencyLimits tightens every rate limit by the configured factor
// until ttl elapses or DisableEmergencyLimits is called. The flag is shared
// through the cache, so all instances tighten together.
func (g *Guard) EnableEmergencyLimits(ctx context.Context, ttl time.Duration) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.limiter.EnableEmergency(ctx, ttl)
}

// DisableEmergencyLimits clears the shared emergency flag.
func (g *Guard) DisableEmergencyLimits(ctx context.Context) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.limiter.DisableEmergency(ctx)
}
