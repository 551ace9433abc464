package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering and filtering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Kinds is an allow-list of event kinds to forward. Empty forwards
	// everything. Filtered events are not counted as dropped.
	Kinds []string
	// MinLatency suppresses operation events faster than this threshold,
	// keeping the stream to the slow calls worth looking at. Zero keeps
	// all of them.
	MinLatency time.Duration
}

// Dispatcher asynchronously forwards events to a sink. A nil Dispatcher is
// valid and drops everything, so callers emit unconditionally.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	kinds     map[string]struct{}
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	if len(cfg.Kinds) > 0 {
		d.kinds = make(map[string]struct{}, len(cfg.Kinds))
		for _, kind := range cfg.Kinds {
			d.kinds[kind] = struct{}{}
		}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			// Drain whatever is already buffered, then stop.
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit enqueues an event. With DropIfFull set it never blocks; the dropped
// counter records shed events.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if !d.wants(event) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// wants applies the kind allow-list and the operation latency floor.
func (d *Dispatcher) wants(event Event) bool {
	if d.kinds != nil {
		if _, ok := d.kinds[event.Kind]; !ok {
			return false
		}
	}
	if d.cfg.MinLatency > 0 && event.Kind == KindOperation && event.Latency < d.cfg.MinLatency {
		return false
	}
	return true
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
