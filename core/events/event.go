package events

// Event represents a structured state change emitted by the fabric.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (journals, metrics,
// external observers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default emitter for every engine so emission is always optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
