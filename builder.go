package authguard

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/evercart/authguard/internal/backoff"
	"github.com/evercart/authguard/internal/cache"
	"github.com/evercart/authguard/internal/fallback"
	"github.com/evercart/authguard/internal/health"
	"github.com/evercart/authguard/internal/limiters"
	"github.com/evercart/authguard/internal/pool"
	"github.com/evercart/authguard/internal/rate"
	"github.com/evercart/authguard/internal/stores"
	"github.com/evercart/authguard/session"
)

// Builder assembles a Guard. Construction is allocation-only until Build,
// which wires the pool, fallback store, facade, and lifecycle components.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	log    *zap.Logger
	sink   health.Sink
	now    func() time.Time
	built  bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		now:    time.Now,
	}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the shared cache client. The caller keeps ownership and
// closes it after the Guard.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Nil keeps the default no-op.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithEventSink registers a receiver for health/metrics events.
func (b *Builder) WithEventSink(sink health.Sink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration and constructs the Guard. A Builder is
// single-use.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, ErrBuilderReused
	}
	b.built = true

	if err := b.config.validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client required", ErrConfigInvalid)
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	cfg := b.config

	events := health.NewDispatcher(health.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
		Kinds:      cfg.Events.Kinds,
		MinLatency: cfg.Events.MinLatency,
	}, b.sink)

	connPool := pool.New(pool.Config{
		ProbeInterval:    cfg.Cache.ProbeInterval,
		ProbeTimeout:     cfg.Cache.ProbeTimeout,
		FailureThreshold: cfg.Cache.PoolFailureThreshold,
		SuccessThreshold: cfg.Cache.PoolSuccessThreshold,
		Reconnect: backoff.Policy{
			Base:       cfg.Cache.ReconnectBase,
			Multiplier: 2,
			Max:        cfg.Cache.ReconnectMax,
		},
	}, b.redis, log, events)

	fb := fallback.New(cfg.Cache.SweepInterval)

	facade := cache.New(cache.Config{
		CallTimeout: cfg.Cache.CallTimeout,
		Breaker: cache.BreakerConfig{
			FailureThreshold: cfg.Cache.BreakerFailureThreshold,
			FailureWindow:    cfg.Cache.BreakerFailureWindow,
			Cooldown:         cfg.Cache.BreakerCooldown,
			MaxCooldown:      cfg.Cache.BreakerMaxCooldown,
		},
	}, connPool, fb, events, log, b.now)

	limiter := rate.New(facade, rate.Config{
		KeyPrefix:       cfg.Rate.KeyPrefix,
		EmergencyFactor: cfg.Rate.EmergencyFactor,
	}, log)
	limiter.Now = b.now

	lockouts := limiters.NewLockoutLimiter(facade, limiters.LockoutConfig{
		FailureThreshold: cfg.Login.FailureThreshold,
		FailureWindow:    cfg.Login.FailureWindow,
		LockBase:         cfg.Login.LockBase,
		LockMax:          cfg.Login.LockMax,
		HistoryTTL:       cfg.Login.HistoryTTL,
	}, log)
	lockouts.Now = b.now

	otpGuard := limiters.NewOTPGuard(limiter, limiters.OTPGuardConfig{
		GenerateLimit:  cfg.OTP.GenerateLimit,
		GenerateWindow: cfg.OTP.GenerateWindow,
		ResendWindow:   cfg.OTP.ResendWindow,
		ClientLimit:    cfg.OTP.ClientLimit,
		ClientWindow:   cfg.OTP.ClientWindow,
	})

	return &Guard{
		config:   cfg,
		log:      log,
		events:   events,
		pool:     connPool,
		fb:       fb,
		facade:   facade,
		limiter:  limiter,
		lockouts: lockouts,
		otpGuard: otpGuard,
		sessions: session.NewStore(facade, cfg.Session.KeyPrefix),
		otps:     stores.NewOTPStore(facade, cfg.OTP.KeyPrefix),
		metrics:  &metricsRegistry{},
		now:      b.now,
	}, nil
}
