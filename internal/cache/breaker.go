package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the circuit position toward the primary backend.
type State uint8

const (
	// StateClosed routes calls to the primary backend.
	StateClosed State = iota
	// StateOpen routes everything to the fallback until cooldown elapses.
	StateOpen
	// StateHalfOpen admits exactly one probe call to the primary.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker tuning parameters.
type BreakerConfig struct {
	// FailureThreshold opens the circuit once this many failures land
	// within FailureWindow.
	FailureThreshold int
	FailureWindow    time.Duration
	// Cooldown is the initial open period; each failed probe doubles it
	// up to MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

// Breaker is the CLOSED/OPEN/HALF_OPEN state machine guarding the primary
// backend. Safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	failures []time.Time
	openedAt time.Time
	cooldown time.Duration
	probing  bool

	opened atomic.Uint64
	closed atomic.Uint64

	now func() time.Time
	log *zap.Logger

	// onTransition observes state changes; it must not call back into
	// the breaker.
	onTransition func(from, to State)
}

// NewBreaker creates a closed breaker. now may be nil for the wall clock.
func NewBreaker(cfg BreakerConfig, log *zap.Logger, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		cfg:      cfg,
		cooldown: cfg.Cooldown,
		now:      now,
		log:      log,
	}
}

// OnTransition registers a state change observer. Set before first use.
func (b *Breaker) OnTransition(fn func(from, to State)) {
	b.onTransition = fn
}

func (b *Breaker) transition(from, to State) {
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}

// Allow reports whether the next call may go to the primary backend, and
// whether that call is the half-open probe. A false first return means the
// call must be served by the fallback.
func (b *Breaker) Allow() (usePrimary, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = StateHalfOpen
		b.probing = true
		b.log.Info("circuit half-open, probing primary")
		b.transition(StateOpen, StateHalfOpen)
		return true, true
	case StateHalfOpen:
		if b.probing {
			// A probe is already in flight.
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, false
}

// OnSuccess records a primary success. A successful probe closes the
// circuit and resets counters and cooldown.
func (b *Breaker) OnSuccess(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe || b.state == StateHalfOpen {
		from := b.state
		b.state = StateClosed
		b.probing = false
		b.failures = b.failures[:0]
		b.cooldown = b.cfg.Cooldown
		b.closed.Add(1)
		b.log.Info("circuit closed, primary restored")
		b.transition(from, StateClosed)
	}
}

// OnFailure records a primary failure (error or timeout). Crossing the
// windowed threshold opens the circuit; a failed probe re-opens it with the
// cooldown doubled up to the cap.
func (b *Breaker) OnFailure(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if probe || b.state == StateHalfOpen {
		from := b.state
		b.state = StateOpen
		b.probing = false
		b.openedAt = now
		b.cooldown *= 2
		if b.cfg.MaxCooldown > 0 && b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.opened.Add(1)
		b.log.Warn("probe failed, circuit re-opened",
			zap.Duration("cooldown", b.cooldown))
		b.transition(from, StateOpen)
		return
	}

	if b.state != StateClosed {
		return
	}

	b.failures = append(b.failures, now)
	b.prune(now)

	if len(b.failures) >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = now
		b.cooldown = b.cfg.Cooldown
		b.failures = b.failures[:0]
		b.opened.Add(1)
		b.log.Warn("failure threshold crossed, circuit opened",
			zap.Duration("cooldown", b.cooldown))
		b.transition(StateClosed, StateOpen)
	}
}

// State returns the current circuit position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Opened and Closed report lifetime transition counts.
func (b *Breaker) Opened() uint64 { return b.opened.Load() }

func (b *Breaker) Closed() uint64 { return b.closed.Load() }

func (b *Breaker) prune(now time.Time) {
	if b.cfg.FailureWindow <= 0 {
		return
	}
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}
