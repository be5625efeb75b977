package httpapi

import "github.com/ralphswarm/conductor/internal/worker"

// CreateSessionRequest is the body of POST /sessions (create_session, §6).
type CreateSessionRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	AgentID string `json:"agent_id" binding:"required"`
	Cwd     string `json:"cwd"`
}

// SendPromptRequest is the body of POST /sessions/:sessionId/prompt (send_prompt, §6).
type SendPromptRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendPromptWithImagesRequest is the body of POST
// /sessions/:sessionId/prompt-with-images (send_prompt_with_images, §6).
type SendPromptWithImagesRequest struct {
	Text   string         `json:"text" binding:"required"`
	Images []worker.Image `json:"images"`
}

// SetSessionModeRequest is the body of POST /sessions/:sessionId/mode (set_session_mode, §6).
type SetSessionModeRequest struct {
	ModeID string `json:"mode_id" binding:"required"`
}

// AuthenticateRequest is the body of POST /sessions/:sessionId/authenticate (authenticate, §6).
type AuthenticateRequest struct {
	MethodID string `json:"method_id" binding:"required"`
}

// RespondToPermissionRequest is the body of POST /workers/:workerId/permission (respond_to_permission, §6).
type RespondToPermissionRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// ReconnectWorkerRequest is the body of POST /sessions/:sessionId/reconnect (reconnect_worker, §6).
type ReconnectWorkerRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Cwd     string `json:"cwd"`
}
