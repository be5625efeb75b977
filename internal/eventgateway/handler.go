package eventgateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/ralphswarm/conductor/internal/logging"
	"go.uber.org/zap"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections to WebSocket and wires them into a Hub.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler builds a Handler serving hub.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{hub: hub, logger: log.WithFields(zap.String("component", "event-gateway-handler"))}
}

// HandleConnection upgrades the request and runs the client's read/write pumps.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := newClient(clientID, conn, h.hub, h.logger)
	h.hub.Register(client)

	go client.writePump()
	client.readPump(c.Request.Context())
}
