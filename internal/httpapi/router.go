package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/ralphswarm/conductor/internal/logging"
	"github.com/ralphswarm/conductor/internal/orchestrator"
	"github.com/ralphswarm/conductor/internal/prd"
)

// SetupRoutes mounts the command surface of §6 under router, the way the
// teacher's internal/orchestrator/api.SetupRoutes mounts onto a RouterGroup.
func SetupRoutes(router *gin.RouterGroup, orch *orchestrator.Orchestrator, log *logger.Logger) {
	handler := NewHandler(orch, log)

	sessions := router.Group("/sessions")
	{
		sessions.POST("", handler.CreateSession)
		sessions.GET("", handler.ListSessions)
		sessions.GET("/:sessionId", handler.GetSession)
		sessions.POST("/:sessionId/prompt", handler.SendPrompt)
		sessions.POST("/:sessionId/prompt-with-images", handler.SendPromptWithImages)
		sessions.POST("/:sessionId/mode", handler.SetSessionMode)
		sessions.POST("/:sessionId/authenticate", handler.Authenticate)
		sessions.POST("/:sessionId/reconnect", handler.ReconnectWorker)
		sessions.POST("/:sessionId/save", handler.SaveSession)
		sessions.POST("/:sessionId/workers/:workerId/cancel", handler.CancelWorker)
		sessions.POST("/:sessionId/workers/:workerId/retry", handler.RetryWorker)
	}

	workers := router.Group("/workers")
	{
		workers.POST("/:workerId/permission", handler.RespondToPermission)
	}

	persisted := router.Group("/persisted-sessions")
	{
		persisted.GET("", handler.ListPersistedSessions)
		persisted.GET("/:id", handler.GetPersistedSession)
		persisted.DELETE("/:id", handler.DeletePersistedSession)
		persisted.POST("/:id/resume", handler.ResumeSession)
	}
}

// SetupPrdRoutes mounts the PRD driver's command surface (§4.7, §6) under
// router.
func SetupPrdRoutes(router *gin.RouterGroup, mgr *prd.Manager, log *logger.Logger) {
	handler := NewPrdHandler(mgr, log)

	prdGroup := router.Group("/prd")
	{
		prdGroup.POST("/validate", handler.ValidatePrd)

		sessions := prdGroup.Group("/sessions")
		{
			sessions.POST("", handler.CreatePrdSession)
			sessions.GET("", handler.ListPrdSessions)
			sessions.GET("/:sessionId", handler.GetPrdSession)
			sessions.POST("/:sessionId/start", handler.StartPrdSession)
			sessions.POST("/:sessionId/pause", handler.PausePrdSession)
			sessions.POST("/:sessionId/resume", handler.ResumePrdSession)
			sessions.POST("/:sessionId/cancel", handler.CancelPrdSession)
			sessions.GET("/:sessionId/workers", handler.GetPrdWorkers)
			sessions.GET("/:sessionId/cost", handler.GetPrdCostBreakdown)
			sessions.GET("/:sessionId/stories/:storyId", handler.GetStoryProgress)
			sessions.POST("/:sessionId/stories/:storyId/retry", handler.RetryPrdStory)
		}
	}
}
