package events

import (
	"context"

	"github.com/ralphswarm/conductor/internal/events/bus"
)

// BusSink adapts an EventBus into the acp.EventSink interface the
// supervision engine emits to (§2 "the core emits typed events through an
// opaque EventSink"). Source labels every published event as originating
// from the conductor core.
type BusSink struct {
	Bus    bus.EventBus
	Source string
}

// NewBusSink builds a BusSink publishing onto b.
func NewBusSink(b bus.EventBus) *BusSink {
	return &BusSink{Bus: b, Source: "conductor"}
}

// Emit implements acp.EventSink by publishing payload as a bus.Event on subject.
func (s *BusSink) Emit(subject string, payload map[string]interface{}) {
	if s.Bus == nil {
		return
	}
	_ = s.Bus.Publish(context.Background(), subject, bus.NewEvent(subject, s.Source, payload))
}
