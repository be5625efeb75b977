package eventgateway

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/ralphswarm/conductor/internal/events/bus"
	"github.com/ralphswarm/conductor/internal/logging"
)

// Gateway bundles the hub, its HTTP handler, and the bus subscription that
// feeds it, as a single unit the host process starts and stops together.
type Gateway struct {
	Hub        *Hub
	Handler    *Handler
	subscriber *Subscriber
}

// SetupRoutes registers the WebSocket upgrade endpoint on router.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", g.Handler.HandleConnection)
}

// Provide builds a Gateway wired to eventBus and starts its hub loop and bus
// subscription. The returned cancel func stops both; callers should defer it.
func Provide(ctx context.Context, eventBus bus.EventBus, log *logger.Logger) (*Gateway, func(), error) {
	runCtx, cancel := context.WithCancel(ctx)

	hub := NewHub(log)
	go hub.Run(runCtx)

	subscriber := Subscribe(runCtx, eventBus, hub, log)
	handler := NewHandler(hub, log)

	gw := &Gateway{Hub: hub, Handler: handler, subscriber: subscriber}
	return gw, cancel, nil
}
