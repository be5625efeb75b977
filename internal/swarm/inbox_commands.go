package swarm

import (
	"fmt"

	"github.com/ralphswarm/conductor/internal/coordination"
)

func (in *Interpreter) executeInbox(cmd Command, worker coordination.WorkerID) Result {
	switch cmd.Action {
	case "read":
		unreadOnly := len(cmd.Args) > 0 && cmd.Args[0] == "--unread"
		var messages []*coordination.Message
		if unreadOnly {
			messages = in.Inbox.ReadUnread(worker)
		} else {
			messages = in.Inbox.Read(worker)
		}
		return ok(fmt.Sprintf("Found %d messages", len(messages)), messages)

	case "write":
		if len(cmd.Args) < 2 {
			return fail(`Usage: swarm inbox write <to_worker_id> "message"`)
		}
		to := coordination.WorkerID(cmd.Args[0])
		content := cmd.Args[1]
		msg := in.Inbox.Send(worker, to, coordination.TextPayload(content))
		return ok(fmt.Sprintf("Message sent to %s", to), msg)

	case "broadcast":
		if len(cmd.Args) == 0 {
			return fail(`Usage: swarm inbox broadcast "message"`)
		}
		content := cmd.Args[0]
		messages := in.Inbox.Broadcast(worker, coordination.TextPayload(content))
		return ok(fmt.Sprintf("Broadcast sent to %d workers", len(messages)), messages)

	case "workers":
		workers := in.Inbox.Workers()
		return ok(fmt.Sprintf("Found %d workers", len(workers)), workers)

	case "mark-read":
		in.Inbox.MarkAllRead(worker)
		return ok("All messages marked as read", nil)

	case "count":
		unreadOnly := len(cmd.Args) == 0 || cmd.Args[0] == "--unread"
		count := in.Inbox.Count(worker, unreadOnly)
		kind := "total"
		if unreadOnly {
			kind = "unread"
		}
		return ok(fmt.Sprintf("%d %s messages", count, kind), map[string]int{"count": count})

	default:
		return fail(fmt.Sprintf("Unknown inbox action %q. Available: read, write, broadcast, workers, mark-read, count", cmd.Action))
	}
}
