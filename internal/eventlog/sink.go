package eventlog

import (
	"sync"

	"github.com/go-logr/logr"
)

// Event is one structured occurrence emitted during an invocation.
// Sink is append-only and internally synchronized — it is the one piece
// of shared mutable state visible to concurrent level-executor tasks.
type Event struct {
	Stage       Stage
	Step        string
	Transmitter string // which component emitted the event, e.g. "helmdriver", "terraform"
	Message     string
	Cause       error
}

// Sink receives events from every component of an invocation. Emit runs
// in the caller's goroutine, so a slow sink slows the caller; the engine
// does no buffering or batching of its own.
type Sink interface {
	Emit(e Event)
}

// LogrSink adapts an injected logr.Logger into a Sink.
type LogrSink struct {
	mu  sync.Mutex
	log logr.Logger
}

// NewLogrSink wraps log as a Sink.
func NewLogrSink(log logr.Logger) *LogrSink {
	return &LogrSink{log: log}
}

// Emit implements Sink.
func (s *LogrSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.log.WithValues("stage", string(e.Stage), "step", e.Step, "transmitter", e.Transmitter)
	if e.Cause != nil {
		l.Error(e.Cause, e.Message)
		return
	}
	l.Info(e.Message)
}

// NopSink discards every event; useful as a default for components that
// receive no sink in tests.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// Recorder is a test-friendly Sink that buffers events for assertions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
