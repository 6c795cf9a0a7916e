package events

// Event represents a structured state change emitted by a native engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (gateway, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines constructed without an explicit emitter.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder collects emitted events in order. It is intended for tests and
// single-threaded keeper loops; it performs no locking.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(ev Event) {
	if r == nil || ev == nil {
		return
	}
	r.Events = append(r.Events, ev)
}

// ByType filters the recorded events for the supplied type identifier.
func (r *Recorder) ByType(eventType string) []Event {
	if r == nil {
		return nil
	}
	var out []Event
	for _, ev := range r.Events {
		if ev.EventType() == eventType {
			out = append(out, ev)
		}
	}
	return out
}
