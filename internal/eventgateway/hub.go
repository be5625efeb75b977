package eventgateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ralphswarm/conductor/internal/logging"
	"go.uber.org/zap"
)

// Hub tracks connected clients and their per-session subscriptions, and
// fans out events to whichever clients are subscribed to the session an
// event belongs to.
type Hub struct {
	mu                 sync.RWMutex
	clients            map[*Client]bool
	sessionSubscribers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	logger *logger.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:            make(map[*Client]bool),
		sessionSubscribers: make(map[string]map[*Client]bool),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
		logger:             log.WithFields(zap.String("component", "event-gateway-hub")),
	}
}

// Run services client (un)registration until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("event gateway hub started")
	defer h.logger.Info("event gateway hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.sessionSubscribers = make(map[string]map[*Client]bool)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closeSend()
	for sessionID, subs := range h.sessionSubscribers {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.sessionSubscribers, sessionID)
		}
	}
}

// Register adds a newly connected client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) subscribeSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessionSubscribers[sessionID]; !ok {
		h.sessionSubscribers[sessionID] = make(map[*Client]bool)
	}
	h.sessionSubscribers[sessionID][client] = true
	client.subscriptions[sessionID] = true
}

func (h *Hub) unsubscribeSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.subscriptions, sessionID)
	if subs, ok := h.sessionSubscribers[sessionID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.sessionSubscribers, sessionID)
		}
	}
}

// BroadcastToSession delivers subject/payload to every client subscribed to
// sessionID. Clients with no matching subscription never see the event.
func (h *Hub) BroadcastToSession(sessionID, subject string, payload map[string]interface{}) {
	data, err := json.Marshal(envelope{Subject: subject, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal event envelope", zap.Error(err))
		return
	}

	h.mu.RLock()
	subs := h.sessionSubscribers[sessionID]
	clients := make([]*Client, 0, len(subs))
	for c := range subs {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.deliver(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
