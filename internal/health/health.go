// Package health carries backend health and metrics events out of the cache
// facade without ever blocking a caller. Events describe which backend served
// an operation, circuit transitions, and pool availability flips; a pluggable
// Sink receives them on a dedicated goroutine.
package health

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the facade and pool.
const (
	KindOperation  = "operation"
	KindCircuit    = "circuit"
	KindPoolHealth = "pool_health"
)

// Event is one health observation. ID is unique per event so downstream
// sinks can deduplicate after retries.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	Backend   string        `json:"backend,omitempty"`
	Op        string        `json:"op,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
}

// NewEvent stamps a fresh event with an ID and timestamp.
func NewEvent(kind string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Kind:      kind,
	}
}

// Sink receives dispatched events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel, for tests and
// in-process consumers.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
