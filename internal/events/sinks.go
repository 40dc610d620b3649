package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LogSink publishes events as structured log lines
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink backed by the application logger
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event with its fields
func (s *LogSink) Publish(e Event) {
	fields := logrus.Fields{"event": string(e.Type)}
	for k, v := range e.Fields {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("Domain event")
}

// MemorySink records events in memory, for tests and the status endpoint
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish records the event
func (s *MemorySink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns the recorded events of one type
func (s *MemorySink) ByType(t Type) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Fanout publishes each event to every wrapped sink
type Fanout []Sink

// Publish forwards the event to all sinks
func (f Fanout) Publish(e Event) {
	for _, s := range f {
		s.Publish(e)
	}
}
