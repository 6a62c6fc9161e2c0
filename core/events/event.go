package events

// Event represents a structured state change emitted by the escrow engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the event log,
// gateway observers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each wrapped emitter in order. Nil entries
// are skipped.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}
