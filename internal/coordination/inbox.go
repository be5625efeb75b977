package coordination

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageID uniquely identifies a message (UUID).
type MessageID string

// MessagePayload is the tagged variant carried by a Message (spec §6).
type MessagePayload struct {
	Kind string `json:"kind"`

	// Text
	Content string `json:"content,omitempty"`

	// ShutdownRequest / PlanApprovalRequest
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	PlanText  string `json:"plan_content,omitempty"`
	Feedback  string `json:"feedback,omitempty"`

	// IdleNotification
	CompletedTaskID string `json:"completed_task_id,omitempty"`

	// TaskCompleted
	TaskID      string `json:"task_id,omitempty"`
	TaskSubject string `json:"task_subject,omitempty"`

	// Custom
	Action string                 `json:"action,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

const (
	PayloadText                = "text"
	PayloadShutdownRequest     = "shutdown_request"
	PayloadShutdownApproved    = "shutdown_approved"
	PayloadShutdownRejected    = "shutdown_rejected"
	PayloadIdleNotification    = "idle_notification"
	PayloadTaskCompleted       = "task_completed"
	PayloadPlanApprovalRequest = "plan_approval_request"
	PayloadPlanApproved        = "plan_approved"
	PayloadPlanRejected        = "plan_rejected"
	PayloadCustom              = "custom"
)

// TextPayload builds the common Text message variant.
func TextPayload(content string) MessagePayload {
	return MessagePayload{Kind: PayloadText, Content: content}
}

// Message is an append-only entry in a worker's mailbox.
type Message struct {
	ID        MessageID
	From      WorkerID
	To        WorkerID
	Payload   MessagePayload
	Read      bool
	Timestamp time.Time
}

// Clone returns a shallow-safe copy for callers outside the inbox lock.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// Inbox is the per-session, in-memory mailbox substrate (§4.3).
type Inbox struct {
	mu       sync.Mutex
	workers  map[WorkerID]struct{}
	messages map[WorkerID][]*Message // keyed by recipient
}

// NewInbox creates an empty Inbox for one session.
func NewInbox() *Inbox {
	return &Inbox{
		workers:  make(map[WorkerID]struct{}),
		messages: make(map[WorkerID][]*Message),
	}
}

// RegisterWorker registers a worker as an inbox participant. Idempotent.
func (ib *Inbox) RegisterWorker(w WorkerID) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if _, exists := ib.workers[w]; exists {
		return
	}
	ib.workers[w] = struct{}{}
	if _, ok := ib.messages[w]; !ok {
		ib.messages[w] = nil
	}
}

// UnregisterWorker removes a worker from the inbox (its message history is kept).
func (ib *Inbox) UnregisterWorker(w WorkerID) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	delete(ib.workers, w)
}

// Workers returns the currently registered worker ids.
func (ib *Inbox) Workers() []WorkerID {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	out := make([]WorkerID, 0, len(ib.workers))
	for w := range ib.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newMessage(from, to WorkerID, payload MessagePayload) *Message {
	return &Message{
		ID:        MessageID(uuid.New().String()),
		From:      from,
		To:        to,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Send delivers a directed message to one worker.
func (ib *Inbox) Send(from, to WorkerID, payload MessagePayload) *Message {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	msg := newMessage(from, to, payload)
	ib.messages[to] = append(ib.messages[to], msg)
	return msg.Clone()
}

// Broadcast delivers a message to every registered worker except the sender.
func (ib *Inbox) Broadcast(from WorkerID, payload MessagePayload) []*Message {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	var delivered []*Message
	for w := range ib.workers {
		if w == from {
			continue // the sender never receives its own broadcast
		}
		msg := newMessage(from, w, payload)
		ib.messages[w] = append(ib.messages[w], msg)
		delivered = append(delivered, msg.Clone())
	}
	return delivered
}

// BroadcastTo delivers a message to a specific subset of targets, still
// excluding the sender if it appears in targets.
func (ib *Inbox) BroadcastTo(from WorkerID, payload MessagePayload, targets []WorkerID) []*Message {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	var delivered []*Message
	for _, w := range targets {
		if w == from {
			continue
		}
		msg := newMessage(from, w, payload)
		ib.messages[w] = append(ib.messages[w], msg)
		delivered = append(delivered, msg.Clone())
	}
	return delivered
}

// Read returns all messages addressed to worker, oldest first.
func (ib *Inbox) Read(worker WorkerID) []*Message {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return cloneMessages(ib.messages[worker])
}

// ReadUnread returns only the unread messages addressed to worker.
func (ib *Inbox) ReadUnread(worker WorkerID) []*Message {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	var out []*Message
	for _, m := range ib.messages[worker] {
		if !m.Read {
			out = append(out, m.Clone())
		}
	}
	return out
}

// MarkRead flips the read flag (false→true) for the given message ids
// addressed to worker. Unknown ids are ignored.
func (ib *Inbox) MarkRead(worker WorkerID, ids []MessageID) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	want := make(map[MessageID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, m := range ib.messages[worker] {
		if _, ok := want[m.ID]; ok {
			m.Read = true
		}
	}
}

// MarkAllRead marks every message addressed to worker as read.
func (ib *Inbox) MarkAllRead(worker WorkerID) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for _, m := range ib.messages[worker] {
		m.Read = true
	}
}

// Count returns the number of messages addressed to worker, optionally
// restricted to unread ones.
func (ib *Inbox) Count(worker WorkerID, unreadOnly bool) int {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if !unreadOnly {
		return len(ib.messages[worker])
	}
	n := 0
	for _, m := range ib.messages[worker] {
		if !m.Read {
			n++
		}
	}
	return n
}

func cloneMessages(in []*Message) []*Message {
	out := make([]*Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
