// Package events defines the typed event vocabulary emitted by the
// supervision engine toward the host's EventSink, and the subject naming
// scheme used to route them over the underlying event bus.
package events

import "fmt"

// Per-worker stream event subject, carrying delta/thinking/plan/complete/error.
func WorkerStreamSubject(workerID string) string {
	return fmt.Sprintf("worker-stream-%s", workerID)
}

// Per-worker permission-request subject.
func WorkerPermissionSubject(workerID string) string {
	return fmt.Sprintf("worker-permission-%s", workerID)
}

// Per-worker tool-call subject.
func WorkerToolSubject(workerID string) string {
	return fmt.Sprintf("worker-tool-%s", workerID)
}

const (
	// WorkerStatusChange carries {session_id, worker_id, status, ...}.
	WorkerStatusChange = "worker-status-change"

	// Terminal lifecycle subjects; payloads carry terminal_id, session_id,
	// timing, and state.
	TerminalCreated  = "terminal-created"
	TerminalOutput   = "terminal-output"
	TerminalExited   = "terminal-exited"
	TerminalKilled   = "terminal-killed"
	TerminalReleased = "terminal-released"

	// SwarmActivity carries {worker_id, session_id, command, result, timestamp}.
	SwarmActivity = "swarm-activity"
)

// Stream event kinds delivered on a WorkerStreamSubject.
const (
	StreamDelta    = "delta"
	StreamThinking = "thinking"
	StreamPlan     = "plan"
	StreamComplete = "complete"
	StreamError    = "error"
)

// Worker lifecycle statuses carried by WorkerStatusChange.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusIdle      = "idle"
)
