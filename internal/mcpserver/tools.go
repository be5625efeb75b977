package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/logging"
	"github.com/ralphswarm/conductor/internal/orchestrator"
	"go.uber.org/zap"
)

func registerTools(s *server.MCPServer, orch *orchestrator.Orchestrator, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("task_list",
			mcp.WithDescription("List every coordination task in a session, including completed and blocked ones."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Task Store to read")),
		),
		taskListHandler(orch, log),
	)

	s.AddTool(
		mcp.NewTool("task_claim",
			mcp.WithDescription("Claim the lowest-numbered claimable task (pending, unowned, unblocked) for a worker."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Task Store to claim from")),
			mcp.WithString("worker_id", mcp.Required(), mcp.Description("The claiming worker's ID")),
		),
		taskClaimHandler(orch, log),
	)

	s.AddTool(
		mcp.NewTool("task_create",
			mcp.WithDescription("Create a new pending coordination task."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Task Store to create in")),
			mcp.WithString("subject", mcp.Required(), mcp.Description("Short task subject")),
			mcp.WithString("description", mcp.Description("Longer task description")),
			mcp.WithString("active_form", mcp.Description("Present-continuous form shown while the task is in progress")),
		),
		taskCreateHandler(orch, log),
	)

	s.AddTool(
		mcp.NewTool("task_update",
			mcp.WithDescription("Patch an existing coordination task: status, ownership, dependencies, or metadata."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Task Store to update")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("The task ID to update")),
			mcp.WithString("status", mcp.Description("New status: pending, in_progress, completed, deleted")),
			mcp.WithArray("add_blocked_by", mcp.Description("Task IDs that must complete before this task may be claimed")),
			mcp.WithArray("add_blocks", mcp.Description("Task IDs this task blocks")),
		),
		taskUpdateHandler(orch, log),
	)

	s.AddTool(
		mcp.NewTool("inbox_read",
			mcp.WithDescription("Read all mailbox messages addressed to a worker, newest last."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Inbox to read")),
			mcp.WithString("worker_id", mcp.Required(), mcp.Description("The reading worker's ID")),
			mcp.WithBoolean("unread_only", mcp.Description("If true, only return unread messages and mark them read")),
		),
		inboxReadHandler(orch, log),
	)

	s.AddTool(
		mcp.NewTool("inbox_write",
			mcp.WithDescription("Send a text message from one worker to another."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Inbox to write to")),
			mcp.WithString("from", mcp.Required(), mcp.Description("The sending worker's ID")),
			mcp.WithString("to", mcp.Required(), mcp.Description("The recipient worker's ID")),
			mcp.WithString("content", mcp.Required(), mcp.Description("The message text")),
		),
		inboxWriteHandler(orch, log),
	)

	s.AddTool(
		mcp.NewTool("inbox_broadcast",
			mcp.WithDescription("Send a text message from one worker to every other registered worker."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID whose Inbox to broadcast on")),
			mcp.WithString("from", mcp.Required(), mcp.Description("The sending worker's ID")),
			mcp.WithString("content", mcp.Required(), mcp.Description("The message text")),
		),
		inboxBroadcastHandler(orch, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 7))
}

func taskListHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		store, err := orch.TaskStore(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(store.List())
	}
}

func taskClaimHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		workerID, err := req.RequireString("worker_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		store, err := orch.TaskStore(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		task := store.Claim(coordination.WorkerID(workerID))
		if task == nil {
			return mcp.NewToolResultText("no claimable task"), nil
		}
		return jsonResult(task)
	}
}

func taskCreateHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		subject, err := req.RequireString("subject")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		store, err := orch.TaskStore(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		description := req.GetString("description", "")
		activeForm := req.GetString("active_form", "")
		task := store.Create(subject, description, activeForm)
		log.Debug("task created via MCP", zap.String("session_id", sessionID), zap.String("task_id", string(task.ID)))
		return jsonResult(task)
	}
}

func taskUpdateHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		store, err := orch.TaskStore(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		patch := coordination.TaskPatch{}
		if status := req.GetString("status", ""); status != "" {
			s := coordination.TaskStatus(status)
			patch.Status = &s
		}
		patch.AddBlockedBy = taskIDList(req, "add_blocked_by")
		patch.AddBlocks = taskIDList(req, "add_blocks")

		task := store.Update(coordination.TaskID(taskID), patch)
		if task == nil {
			return mcp.NewToolResultError(fmt.Sprintf("task %q not found", taskID)), nil
		}
		return jsonResult(task)
	}
}

func taskIDList(req mcp.CallToolRequest, field string) []coordination.TaskID {
	args := req.GetArguments()
	raw, ok := args[field]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]coordination.TaskID, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, coordination.TaskID(s))
		}
	}
	return out
}

func inboxReadHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		workerID, err := req.RequireString("worker_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		inbox, err := orch.Inbox(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		w := coordination.WorkerID(workerID)
		var messages []*coordination.Message
		if boolArg(req, "unread_only", false) {
			messages = inbox.ReadUnread(w)
		} else {
			messages = inbox.Read(w)
		}
		return jsonResult(messages)
	}
}

func inboxWriteHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		from, err := req.RequireString("from")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		to, err := req.RequireString("to")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		inbox, err := orch.Inbox(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		msg := inbox.Send(coordination.WorkerID(from), coordination.WorkerID(to), coordination.TextPayload(content))
		log.Debug("inbox message sent via MCP", zap.String("session_id", sessionID), zap.String("from", from), zap.String("to", to))
		return jsonResult(msg)
	}
}

func inboxBroadcastHandler(orch *orchestrator.Orchestrator, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		from, err := req.RequireString("from")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		inbox, err := orch.Inbox(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		msgs := inbox.Broadcast(coordination.WorkerID(from), coordination.TextPayload(content))
		log.Debug("inbox broadcast via MCP", zap.String("session_id", sessionID), zap.String("from", from), zap.Int("recipients", len(msgs)))
		return jsonResult(msgs)
	}
}

func boolArg(req mcp.CallToolRequest, field string, def bool) bool {
	if v, ok := req.GetArguments()[field].(bool); ok {
		return v
	}
	return def
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
