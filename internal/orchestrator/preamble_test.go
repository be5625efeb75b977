package orchestrator

import (
	"strings"
	"testing"

	"github.com/ralphswarm/conductor/internal/coordination"
)

func makeTask(id, subject string, status coordination.TaskStatus) *coordination.Task {
	return &coordination.Task{
		ID:      coordination.TaskID(id),
		Subject: subject,
		Status:  status,
	}
}

func TestBuildCoordinationPreambleLeader(t *testing.T) {
	tasks := []*coordination.Task{
		makeTask("1", "Setup project", coordination.TaskCompleted),
		makeTask("2", "Implement feature", coordination.TaskPending),
	}

	prompt := BuildCoordinationPreamble("worker-1", "session-123", true, tasks)

	if !strings.Contains(prompt, "worker `worker-1`") {
		t.Error("expected worker id in preamble")
	}
	if !strings.Contains(prompt, "session `session-123`") {
		t.Error("expected session id in preamble")
	}
	if !strings.Contains(prompt, "**leader**") {
		t.Error("expected leader role description")
	}
	if !strings.Contains(prompt, "[x] #1 Setup project") {
		t.Error("expected completed task marker")
	}
	if !strings.Contains(prompt, "[ ] #2 Implement feature") {
		t.Error("expected pending task marker")
	}
}

func TestBuildCoordinationPreambleWorkerNoTasks(t *testing.T) {
	prompt := BuildCoordinationPreamble("worker-2", "session-456", false, nil)

	if !strings.Contains(prompt, "**worker**") {
		t.Error("expected worker role description")
	}
	if !strings.Contains(prompt, "No tasks created yet") {
		t.Error("expected empty-task placeholder")
	}
}

func TestFormatTasksWithDependencies(t *testing.T) {
	task := makeTask("3", "Deploy", coordination.TaskPending)
	task.BlockedBy = map[coordination.TaskID]struct{}{
		coordination.TaskID("1"): {},
		coordination.TaskID("2"): {},
	}

	out := formatTasks([]*coordination.Task{task})
	if !strings.Contains(out, "blocked by: 1, 2") {
		t.Errorf("expected sorted blocked-by list, got %q", out)
	}
}
