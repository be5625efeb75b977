package eventgateway

import (
	"context"

	"github.com/ralphswarm/conductor/internal/events/bus"
	"github.com/ralphswarm/conductor/internal/logging"
	"go.uber.org/zap"
)

// subjects is the set of wildcard/exact subjects the production path fans
// out to connected clients (the vocabulary in internal/events/types.go).
var subjects = []string{
	"worker-stream-*",
	"worker-permission-*",
	"worker-tool-*",
	"worker-status-change",
	"terminal-*",
	"swarm-activity",
}

// Subscriber bridges an EventBus (the far end of events.BusSink) to a Hub,
// broadcasting every matching event to its session's subscribed clients.
type Subscriber struct {
	hub           *Hub
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

// Subscribe wires hub to every subject in the production vocabulary. Call
// Close (or cancel ctx) to tear the subscriptions down.
func Subscribe(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *Subscriber {
	s := &Subscriber{hub: hub, logger: log.WithFields(zap.String("component", "event-gateway-subscriber"))}
	if eventBus == nil {
		return s
	}

	for _, subject := range subjects {
		s.subscribe(eventBus, subject)
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s
}

func (s *Subscriber) subscribe(eventBus bus.EventBus, subject string) {
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		payload, _ := event.Data.(map[string]interface{})
		sessionID := extractSessionID(payload)
		if sessionID == "" {
			return nil
		}
		s.hub.BroadcastToSession(sessionID, event.Type, payload)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to subscribe to events", zap.String("subject", subject), zap.Error(err))
		return
	}
	s.subscriptions = append(s.subscriptions, sub)
}

// Close tears down every bus subscription.
func (s *Subscriber) Close() {
	for _, sub := range s.subscriptions {
		if sub != nil && sub.IsValid() {
			_ = sub.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

func extractSessionID(data map[string]interface{}) string {
	if data == nil {
		return ""
	}
	sessionID, _ := data["session_id"].(string)
	return sessionID
}
