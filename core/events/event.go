package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// CollectingEmitter buffers emitted events in order. Intended for tests and
// for request-scoped capture of the events a transition produced.
type CollectingEmitter struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (c *CollectingEmitter) Emit(evt Event) {
	c.Events = append(c.Events, evt)
}
