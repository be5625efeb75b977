package acp

// EventSink is the opaque typed-event destination the core emits to (§2).
// The host owns the concrete implementation (e.g. publishing onto the
// EventBus under the subject naming scheme in internal/events).
type EventSink interface {
	Emit(subject string, payload map[string]interface{})
}

// NopSink discards every event. Useful in tests.
type NopSink struct{}

func (NopSink) Emit(string, map[string]interface{}) {}
