// Package events carries the domain events emitted by the acquisition
// core: download outcomes, import results and per-pass summaries.
// Observability and notification collaborators consume them through the
// Sink interface.
package events

import "time"

// Type identifies a domain event
type Type string

const (
	TypeDownloadCompleted Type = "download.completed"
	TypeDownloadFailed    Type = "download.failed"
	TypeDownloadMissing   Type = "download.missing"
	TypeImportCompleted   Type = "import.completed"
	TypeMonitorSummary    Type = "monitor.summary"
)

// Event is a structured domain event
type Event struct {
	Type   Type
	Time   time.Time
	Fields map[string]interface{}
}

// New creates an event stamped with the current time
func New(t Type, fields map[string]interface{}) Event {
	return Event{Type: t, Time: time.Now(), Fields: fields}
}

// Sink receives domain events
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a plain function to the Sink interface
type SinkFunc func(Event)

// Publish calls the function
func (f SinkFunc) Publish(e Event) { f(e) }
