package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ralphswarm/conductor/internal/coordination"
)

// BuildCoordinationPreamble builds the system context prepended to a new
// session's first prompt to enable swarm coordination via the Task Store
// and Inbox primitives (§4.7).
func BuildCoordinationPreamble(workerID coordination.WorkerID, sessionID string, isLeader bool, initialTasks []*coordination.Task) string {
	roleDescription := "You are a **worker** in this session. Claim tasks, complete work, and communicate with your team."
	if isLeader {
		roleDescription = "You are the **leader** of this session. Coordinate work, create tasks for the team, and manage other workers."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Swarm Coordination\n\n")
	fmt.Fprintf(&b, "You are worker `%s` in session `%s`.\n", workerID, sessionID)
	fmt.Fprintf(&b, "%s\n\n", roleDescription)

	b.WriteString("### Available Commands (via Bash tool)\n\n")
	b.WriteString("You can coordinate with other workers using these commands:\n\n")
	b.WriteString("**Task Management:**\n```bash\n")
	b.WriteString("swarm task list                              # See all tasks\n")
	b.WriteString("swarm task get <id>                          # Get task details\n")
	b.WriteString("swarm task claim                             # Claim next available task\n")
	b.WriteString("swarm task update <id> completed             # Mark task done\n")
	b.WriteString("swarm task update <id> in_progress           # Mark task in progress\n")
	b.WriteString("swarm task create \"Subject\" \"Description\"   # Create new task\n")
	b.WriteString("swarm task delete <id>                       # Delete a task\n")
	b.WriteString("```\n\n")

	b.WriteString("**Communication:**\n```bash\n")
	b.WriteString("swarm inbox read                             # Check messages from other workers\n")
	b.WriteString("swarm inbox read --unread                    # Check only unread messages\n")
	b.WriteString("swarm inbox write <worker-id> \"message\"      # Send to specific worker\n")
	b.WriteString("swarm inbox broadcast \"message\"              # Send to all workers\n")
	b.WriteString("swarm inbox workers                          # List all workers\n")
	b.WriteString("swarm inbox count                            # Count unread messages\n")
	b.WriteString("swarm inbox mark-read                        # Mark all messages as read\n")
	b.WriteString("```\n\n")

	b.WriteString("### Coordination Workflow\n\n")
	b.WriteString("1. **Check inbox first**: `swarm inbox read --unread`\n")
	b.WriteString("2. **Review available tasks**: `swarm task list`\n")
	b.WriteString("3. **Claim work**: `swarm task claim`\n")
	b.WriteString("4. **Do the actual work** (write code, edit files, etc.)\n")
	b.WriteString("5. **Mark complete**: `swarm task update <id> completed`\n")
	b.WriteString("6. **Notify team**: `swarm inbox broadcast \"Completed: <subject>\"`\n")
	b.WriteString("7. **Repeat** or wait for new work\n\n")

	b.WriteString("### Task Status Flow\n\n")
	b.WriteString("```\n")
	b.WriteString("pending → in_progress → completed\n")
	b.WriteString("                     ↘ deleted\n")
	b.WriteString("```\n\n")
	b.WriteString("- **pending**: Not started, available to claim\n")
	b.WriteString("- **in_progress**: Someone is working on it\n")
	b.WriteString("- **completed**: Done\n")
	b.WriteString("- **deleted**: Removed\n\n")

	b.WriteString("### Task Dependencies\n\n")
	b.WriteString("Tasks can have dependencies (blocked_by). A task is only claimable when:\n")
	b.WriteString("- Status is `pending`\n")
	b.WriteString("- No owner assigned\n")
	b.WriteString("- All `blocked_by` tasks are completed\n\n")

	b.WriteString("### Current Session State\n\n")
	b.WriteString("**Workers in session:** Check with `swarm inbox workers`\n\n")
	b.WriteString("**Current Tasks:**\n")
	b.WriteString(formatTasks(initialTasks))
	b.WriteString("\n\n---\n\n")

	return b.String()
}

func formatTasks(tasks []*coordination.Task) string {
	if len(tasks) == 0 {
		return "No tasks created yet. Create some with `swarm task create`."
	}

	var b strings.Builder
	for _, task := range tasks {
		var statusMarker string
		switch task.Status {
		case coordination.TaskPending:
			statusMarker = "[ ]"
		case coordination.TaskInProgress:
			statusMarker = "[~]"
		case coordination.TaskCompleted:
			statusMarker = "[x]"
		case coordination.TaskDeleted:
			statusMarker = "[-]"
		default:
			statusMarker = "[?]"
		}

		owner := ""
		if task.Owner != nil {
			owner = fmt.Sprintf(" (%s)", *task.Owner)
		}

		blocked := ""
		if len(task.BlockedBy) > 0 {
			ids := make([]string, 0, len(task.BlockedBy))
			for id := range task.BlockedBy {
				ids = append(ids, string(id))
			}
			sort.Strings(ids)
			blocked = fmt.Sprintf(" blocked by: %s", strings.Join(ids, ", "))
		}

		fmt.Fprintf(&b, "- %s #%s %s%s%s\n", statusMarker, task.ID, task.Subject, owner, blocked)
	}
	return b.String()
}
