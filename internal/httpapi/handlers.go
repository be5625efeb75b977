package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ralphswarm/conductor/internal/common/constants"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/logging"
	"github.com/ralphswarm/conductor/internal/orchestrator"
)

// Handler serves the orchestrator's command surface (§6) as JSON REST
// endpoints, the gin-handler-struct shape the teacher uses throughout
// pkg/api/v1 and internal/orchestrator/api.
type Handler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// NewHandler builds a Handler dispatching onto orch.
func NewHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *Handler {
	return &Handler{orch: orch, logger: log.WithFields(zap.String("component", "http-api"))}
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), newErrorResponse(err))
}

// CreateSession implements create_session.
// POST /sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	sess, err := h.orch.CreateSession(c.Request.Context(), req.Prompt, req.AgentID, req.Cwd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// SendPrompt implements send_prompt.
// POST /sessions/:sessionId/prompt
func (h *Handler) SendPrompt(c *gin.Context) {
	var req SendPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Bounded by PromptTimeout rather than the request context: a slow
	// client disconnect shouldn't race an agent mid-reply.
	ctx, cancel := context.WithTimeout(context.Background(), constants.PromptTimeout)
	defer cancel()
	if err := h.orch.SendPrompt(ctx, c.Param("sessionId"), req.Text); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// SendPromptWithImages implements send_prompt_with_images.
// POST /sessions/:sessionId/prompt-with-images
func (h *Handler) SendPromptWithImages(c *gin.Context) {
	var req SendPromptWithImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.PromptTimeout)
	defer cancel()
	if err := h.orch.SendPromptWithImages(ctx, c.Param("sessionId"), req.Text, req.Images); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// SetSessionMode implements set_session_mode.
// POST /sessions/:sessionId/mode
func (h *Handler) SetSessionMode(c *gin.Context) {
	var req SetSessionModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.orch.SetSessionMode(c.Request.Context(), c.Param("sessionId"), req.ModeID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Authenticate implements authenticate.
// POST /sessions/:sessionId/authenticate
func (h *Handler) Authenticate(c *gin.Context) {
	var req AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.orch.Authenticate(c.Request.Context(), c.Param("sessionId"), req.MethodID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelWorker implements cancel_worker.
// POST /sessions/:sessionId/workers/:workerId/cancel
func (h *Handler) CancelWorker(c *gin.Context) {
	workerID := coordination.WorkerID(c.Param("workerId"))
	if err := h.orch.CancelWorker(c.Param("sessionId"), workerID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RetryWorker implements retry_worker.
// POST /sessions/:sessionId/workers/:workerId/retry
func (h *Handler) RetryWorker(c *gin.Context) {
	workerID := coordination.WorkerID(c.Param("workerId"))
	if err := h.orch.RetryWorker(c.Request.Context(), c.Param("sessionId"), workerID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReconnectWorker implements reconnect_worker.
// POST /sessions/:sessionId/reconnect
func (h *Handler) ReconnectWorker(c *gin.Context) {
	var req ReconnectWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	workerID, err := h.orch.ReconnectWorker(c.Request.Context(), c.Param("sessionId"), req.AgentID, req.Cwd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": workerID})
}

// RespondToPermission implements respond_to_permission.
// POST /workers/:workerId/permission
func (h *Handler) RespondToPermission(c *gin.Context) {
	var req RespondToPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	workerID := coordination.WorkerID(c.Param("workerId"))
	if err := h.orch.RespondToPermission(workerID, req.OptionID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSessions implements list_sessions.
// GET /sessions
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.orch.ListSessions()})
}

// GetSession implements get_session.
// GET /sessions/:sessionId
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.orch.GetSession(c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SaveSession implements save_session.
// POST /sessions/:sessionId/save
func (h *Handler) SaveSession(c *gin.Context) {
	persisted, err := h.orch.SaveSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, persisted)
}

// ResumeSession implements resume_session.
// POST /persisted-sessions/:id/resume
func (h *Handler) ResumeSession(c *gin.Context) {
	sess, err := h.orch.ResumeSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ListPersistedSessions implements list_persisted_sessions.
// GET /persisted-sessions
func (h *Handler) ListPersistedSessions(c *gin.Context) {
	sessions, err := h.orch.ListPersistedSessions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetPersistedSession implements get_persisted_session.
// GET /persisted-sessions/:id
func (h *Handler) GetPersistedSession(c *gin.Context) {
	persisted, err := h.orch.GetPersistedSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, persisted)
}

// DeletePersistedSession implements delete_persisted_session.
// DELETE /persisted-sessions/:id
func (h *Handler) DeletePersistedSession(c *gin.Context) {
	if err := h.orch.DeletePersistedSession(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
