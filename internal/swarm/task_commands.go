package swarm

import (
	"fmt"
	"strings"

	"github.com/ralphswarm/conductor/internal/coordination"
)

func (in *Interpreter) executeTask(cmd Command, worker coordination.WorkerID) Result {
	switch cmd.Action {
	case "list":
		tasks := in.Tasks.List()
		return ok(fmt.Sprintf("Found %d tasks", len(tasks)), tasks)

	case "get":
		if len(cmd.Args) == 0 {
			return fail(`Usage: swarm task get <id>`)
		}
		id := coordination.TaskID(cmd.Args[0])
		task := in.Tasks.Get(id)
		if task == nil {
			return fail(fmt.Sprintf("Task %q not found", id))
		}
		return ok(fmt.Sprintf("Task %s: %s", task.ID, task.Subject), task)

	case "claim":
		task := in.Tasks.Claim(worker)
		if task == nil {
			return fail("No available tasks to claim")
		}
		return ok(fmt.Sprintf("Claimed task %s: %s", task.ID, task.Subject), task)

	case "create":
		if len(cmd.Args) < 2 {
			return fail(`Usage: swarm task create "Subject" "Description" ["ActiveForm"]`)
		}
		subject, description := cmd.Args[0], cmd.Args[1]
		activeForm := ""
		if len(cmd.Args) > 2 {
			activeForm = cmd.Args[2]
		}
		task := in.Tasks.Create(subject, description, activeForm)
		return ok(fmt.Sprintf("Created task %s: %s", task.ID, task.Subject), task)

	case "update":
		if len(cmd.Args) < 2 {
			return fail("Usage: swarm task update <id> <pending|in_progress|completed|deleted>")
		}
		id := coordination.TaskID(cmd.Args[0])
		status, valid := parseStatus(cmd.Args[1])
		if !valid {
			return fail(fmt.Sprintf("Invalid status %q. Use: pending, in_progress, completed, deleted", cmd.Args[1]))
		}
		task := in.Tasks.Update(id, coordination.TaskPatch{Status: &status})
		if task == nil {
			return fail(fmt.Sprintf("Task %q not found", id))
		}
		return ok(fmt.Sprintf("Updated task %s: status=%s", task.ID, task.Status), task)

	case "delete":
		if len(cmd.Args) == 0 {
			return fail("Usage: swarm task delete <id>")
		}
		id := coordination.TaskID(cmd.Args[0])
		task := in.Tasks.Delete(id)
		if task == nil {
			return fail(fmt.Sprintf("Task %q not found", id))
		}
		return ok(fmt.Sprintf("Deleted task %s", task.ID), task)

	default:
		return fail(fmt.Sprintf("Unknown task action %q. Available: list, get, claim, create, update, delete", cmd.Action))
	}
}

func parseStatus(s string) (coordination.TaskStatus, bool) {
	switch strings.ToLower(s) {
	case "pending":
		return coordination.TaskPending, true
	case "in_progress", "inprogress":
		return coordination.TaskInProgress, true
	case "completed", "done":
		return coordination.TaskCompleted, true
	case "deleted":
		return coordination.TaskDeleted, true
	default:
		return "", false
	}
}
