// Package pool tracks the health of the shared cache connection and decides
// when it may be used. go-redis maintains the socket pool itself; this layer
// adds liveness probing, consecutive failure/success accounting, and
// exponential reconnect pacing so callers only ever see available or
// unavailable, never transport errors.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/evercart/authguard/internal/backoff"
	"github.com/evercart/authguard/internal/health"
)

// ErrNotAvailable is returned by Acquire while the shared cache is
// considered unhealthy.
var ErrNotAvailable = errors.New("shared cache not available")

// Config holds pool tuning parameters.
type Config struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	SuccessThreshold int
	Reconnect        backoff.Policy
}

// Pool guards access to the shared cache client.
type Pool struct {
	cfg    Config
	client redis.UniversalClient
	log    *zap.Logger
	events *health.Dispatcher

	healthy atomic.Bool

	mu          sync.Mutex
	consecFails int
	consecOKs   int

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wraps client and starts the liveness probe. It never fails on an
// unreachable cache: the pool simply starts unhealthy and the probe loop
// recovers it, retrying forever with exponential pacing.
func New(cfg Config, client redis.UniversalClient, log *zap.Logger, events *health.Dispatcher) *Pool {
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		cfg:    cfg,
		client: client,
		log:    log,
		events: events,
		done:   make(chan struct{}),
	}

	// Synchronous first probe so a reachable cache is usable immediately.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
	if err := client.Ping(ctx).Err(); err == nil {
		p.healthy.Store(true)
	} else {
		p.log.Warn("shared cache unreachable at startup, starting degraded",
			zap.Error(err))
	}
	cancel()

	p.wg.Add(1)
	go p.run()

	return p
}

// Healthy reports whether the shared cache is currently considered usable.
func (p *Pool) Healthy() bool {
	return p.healthy.Load()
}

// Acquire returns a live client handle or ErrNotAvailable. tag names the
// caller for diagnostics only.
func (p *Pool) Acquire(tag string) (redis.UniversalClient, error) {
	if !p.healthy.Load() {
		p.log.Debug("acquire rejected, cache unhealthy", zap.String("tag", tag))
		return nil, ErrNotAvailable
	}
	return p.client, nil
}

// ReportFailure feeds a call-site transport failure into the consecutive
// failure accounting, so in-band errors flip health as fast as probes do.
func (p *Pool) ReportFailure() {
	p.recordFailure("call")
}

// ReportSuccess resets the consecutive failure counter after an in-band
// success.
func (p *Pool) ReportSuccess() {
	p.recordSuccess("call")
}

// Close stops the probe loop. It does not close the underlying client,
// which the owner provided and owns.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Pool) run() {
	defer p.wg.Done()

	attempt := 0
	for {
		var wait time.Duration
		if p.healthy.Load() {
			wait = p.cfg.ProbeInterval
			attempt = 0
		} else {
			wait = p.cfg.Reconnect.Delay(attempt)
		}

		select {
		case <-p.done:
			return
		case <-time.After(wait):
		}

		if p.probe() {
			attempt = 0
		} else if !p.healthy.Load() {
			attempt++
		}
	}
}

func (p *Pool) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		p.recordFailure("probe")
		return false
	}
	p.recordSuccess("probe")
	return true
}

func (p *Pool) recordFailure(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecOKs = 0
	p.consecFails++
	if p.healthy.Load() && p.consecFails >= p.cfg.FailureThreshold {
		p.healthy.Store(false)
		p.log.Warn("shared cache marked unhealthy",
			zap.String("source", source),
			zap.Int("consecutive_failures", p.consecFails))
		p.emitHealth(false)
	}
}

func (p *Pool) recordSuccess(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecFails = 0
	if p.healthy.Load() {
		return
	}

	p.consecOKs++
	if p.consecOKs >= p.cfg.SuccessThreshold {
		p.healthy.Store(true)
		p.consecOKs = 0
		p.log.Info("shared cache recovered", zap.String("source", source))
		p.emitHealth(true)
	}
}

func (p *Pool) emitHealth(healthy bool) {
	event := health.NewEvent(health.KindPoolHealth)
	event.Outcome = "unhealthy"
	if healthy {
		event.Outcome = "healthy"
	}
	p.events.Emit(context.Background(), event)
}
