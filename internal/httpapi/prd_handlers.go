package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ralphswarm/conductor/internal/logging"
	"github.com/ralphswarm/conductor/internal/prd"
)

// PrdHandler serves the PRD driver's command surface (§6) as JSON REST
// endpoints, mirroring Handler's shape.
type PrdHandler struct {
	mgr    *prd.Manager
	logger *logger.Logger
}

// NewPrdHandler builds a PrdHandler dispatching onto mgr.
func NewPrdHandler(mgr *prd.Manager, log *logger.Logger) *PrdHandler {
	return &PrdHandler{mgr: mgr, logger: log.WithFields(zap.String("component", "prd-http-api"))}
}

func (h *PrdHandler) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), newErrorResponse(err))
}

// ValidatePrd implements validate_prd.
// POST /prd/validate
func (h *PrdHandler) ValidatePrd(c *gin.Context) {
	var req ValidatePrdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.mgr.Validate(req.PRD))
}

// CreatePrdSession implements create_prd_session.
// POST /prd/sessions
func (h *PrdHandler) CreatePrdSession(c *gin.Context) {
	var req CreatePrdSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	sess, err := h.mgr.CreateSession(req.PRD)
	if err != nil {
		h.fail(c, err)
		return
	}

	if req.Start {
		if err := h.mgr.StartSession(c.Request.Context(), sess.ID); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, sess)
}

// StartPrdSession starts a previously-created, not-yet-running session.
// POST /prd/sessions/:sessionId/start
func (h *PrdHandler) StartPrdSession(c *gin.Context) {
	if err := h.mgr.StartSession(c.Request.Context(), c.Param("sessionId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PausePrdSession implements pause_prd_session.
// POST /prd/sessions/:sessionId/pause
func (h *PrdHandler) PausePrdSession(c *gin.Context) {
	if err := h.mgr.PauseSession(c.Param("sessionId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResumePrdSession implements resume_prd_session.
// POST /prd/sessions/:sessionId/resume
func (h *PrdHandler) ResumePrdSession(c *gin.Context) {
	if err := h.mgr.ResumeSession(c.Request.Context(), c.Param("sessionId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelPrdSession implements cancel_prd_session.
// POST /prd/sessions/:sessionId/cancel
func (h *PrdHandler) CancelPrdSession(c *gin.Context) {
	if err := h.mgr.CancelSession(c.Param("sessionId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RetryPrdStory implements retry_prd_story.
// POST /prd/sessions/:sessionId/stories/:storyId/retry
func (h *PrdHandler) RetryPrdStory(c *gin.Context) {
	if err := h.mgr.RetryStory(c.Param("sessionId"), c.Param("storyId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStoryProgress implements get_story_progress.
// GET /prd/sessions/:sessionId/stories/:storyId
func (h *PrdHandler) GetStoryProgress(c *gin.Context) {
	progress, err := h.mgr.GetStoryProgress(c.Param("sessionId"), c.Param("storyId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GetPrdWorkers implements get_prd_workers.
// GET /prd/sessions/:sessionId/workers
func (h *PrdHandler) GetPrdWorkers(c *gin.Context) {
	workers, err := h.mgr.GetWorkers(c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workers": workers})
}

// GetPrdCostBreakdown implements get_prd_cost_breakdown.
// GET /prd/sessions/:sessionId/cost
func (h *PrdHandler) GetPrdCostBreakdown(c *gin.Context) {
	breakdown, err := h.mgr.GetCostBreakdown(c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cost_breakdown": breakdown})
}

// ListPrdSessions lists every PRD session as a summary.
// GET /prd/sessions
func (h *PrdHandler) ListPrdSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.mgr.ListSessions()})
}

// GetPrdSession implements get_prd_session.
// GET /prd/sessions/:sessionId
func (h *PrdHandler) GetPrdSession(c *gin.Context) {
	sess, err := h.mgr.GetSession(c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
