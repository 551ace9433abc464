package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evercart/authguard/internal/fallback"
	"github.com/evercart/authguard/internal/health"
	"github.com/evercart/authguard/internal/pool"
)

// Config holds facade tuning parameters.
type Config struct {
	// CallTimeout bounds each primary round trip; exceeding it counts as
	// a breaker failure.
	CallTimeout time.Duration
	Breaker     BreakerConfig
}

// Stats is a snapshot of facade routing counters.
type Stats struct {
	PrimaryCalls  uint64
	FallbackCalls uint64
	Failovers     uint64
	CircuitState  string
	CircuitOpened uint64
	CircuitClosed uint64
}

// Facade routes storage operations to the primary or fallback backend via
// the circuit breaker. Transient primary failures are absorbed: the call is
// re-served by the fallback and the caller sees only the semantic result.
type Facade struct {
	primary  Backend
	fb       Backend
	breaker  *Breaker
	timeout  time.Duration
	connPool *pool.Pool
	events   *health.Dispatcher
	log      *zap.Logger

	primaryCalls  atomic.Uint64
	fallbackCalls atomic.Uint64
	failovers     atomic.Uint64
}

// New builds a Facade over the connection pool and fallback store. now may
// be nil for the wall clock.
func New(cfg Config, connPool *pool.Pool, fb *fallback.Store, events *health.Dispatcher, log *zap.Logger, now func() time.Time) *Facade {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Facade{
		primary:  newPrimaryBackend(connPool),
		fb:       fb,
		breaker:  NewBreaker(cfg.Breaker, log, now),
		timeout:  cfg.CallTimeout,
		connPool: connPool,
		events:   events,
		log:      log,
	}
	f.breaker.OnTransition(func(from, to State) {
		if f.events == nil {
			return
		}
		event := health.NewEvent(health.KindCircuit)
		event.Backend = f.primary.Name()
		event.Outcome = to.String()
		event.Detail = from.String()
		f.events.Emit(context.Background(), event)
	})
	return f
}

// Get returns the value at key.
func (f *Facade) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	f.do(ctx, "get", func(ctx context.Context, b Backend) error {
		var err error
		value, found, err = b.Get(ctx, key)
		return err
	})
	return value, found, nil
}

// Set stores value under key with the given ttl.
func (f *Facade) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.do(ctx, "set", func(ctx context.Context, b Backend) error {
		return b.Set(ctx, key, value, ttl)
	})
	return nil
}

// Delete removes the given keys.
func (f *Facade) Delete(ctx context.Context, keys ...string) error {
	f.do(ctx, "delete", func(ctx context.Context, b Backend) error {
		return b.Delete(ctx, keys...)
	})
	return nil
}

// IncrWithTTL atomically increments the counter at key, establishing ttl on
// the first increment, and returns the post-increment value.
func (f *Facade) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	f.do(ctx, "incr", func(ctx context.Context, b Backend) error {
		var err error
		count, err = b.IncrWithTTL(ctx, key, ttl)
		return err
	})
	return count, nil
}

// SetAdd adds member to the set at key.
func (f *Facade) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	f.do(ctx, "sadd", func(ctx context.Context, b Backend) error {
		return b.SetAdd(ctx, key, member, ttl)
	})
	return nil
}

// SetRemove removes member from the set at key.
func (f *Facade) SetRemove(ctx context.Context, key, member string) error {
	f.do(ctx, "srem", func(ctx context.Context, b Backend) error {
		return b.SetRemove(ctx, key, member)
	})
	return nil
}

// SetMembers returns the members of the set at key.
func (f *Facade) SetMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	f.do(ctx, "smembers", func(ctx context.Context, b Backend) error {
		var err error
		members, err = b.SetMembers(ctx, key)
		return err
	})
	return members, nil
}

// Degraded reports whether calls are currently served by the fallback.
func (f *Facade) Degraded() bool {
	return f.breaker.State() != StateClosed
}

// Stats snapshots routing counters and circuit state.
func (f *Facade) Stats() Stats {
	return Stats{
		PrimaryCalls:  f.primaryCalls.Load(),
		FallbackCalls: f.fallbackCalls.Load(),
		Failovers:     f.failovers.Load(),
		CircuitState:  f.breaker.State().String(),
		CircuitOpened: f.breaker.Opened(),
		CircuitClosed: f.breaker.Closed(),
	}
}

// do runs call against the backend the breaker selects. A primary failure
// is counted, reported to the pool, and transparently re-served by the
// fallback; the closure overwrites its captured results on the second run.
func (f *Facade) do(ctx context.Context, op string, call func(context.Context, Backend) error) {
	usePrimary, probe := f.breaker.Allow()

	if usePrimary {
		start := time.Now()
		cctx := ctx
		cancel := func() {}
		if f.timeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, f.timeout)
		}
		err := call(cctx, f.primary)
		cancel()

		if err == nil {
			f.breaker.OnSuccess(probe)
			f.connPool.ReportSuccess()
			f.primaryCalls.Add(1)
			f.emit(op, f.primary.Name(), "ok", time.Since(start))
			return
		}

		f.breaker.OnFailure(probe)
		f.connPool.ReportFailure()
		f.failovers.Add(1)
		f.emit(op, f.primary.Name(), "error", time.Since(start))
		f.log.Debug("primary call failed, serving from fallback",
			zap.String("op", op), zap.Error(err))
	}

	start := time.Now()
	_ = call(ctx, f.fb)
	f.fallbackCalls.Add(1)
	f.emit(op, f.fb.Name(), "ok", time.Since(start))
}

func (f *Facade) emit(op, backend, outcome string, latency time.Duration) {
	if f.events == nil {
		return
	}
	event := health.NewEvent(health.KindOperation)
	event.Op = op
	event.Backend = backend
	event.Outcome = outcome
	event.Latency = latency
	f.events.Emit(context.Background(), event)
}
