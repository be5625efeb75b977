// Package coordination implements the per-session Task Store and Inbox:
// the in-memory coordination substrate that swarm sub-commands operate on.
package coordination

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// TaskID is a per-session monotone counter encoded as a decimal string.
type TaskID string

// WorkerID identifies a worker within a session.
type WorkerID string

// TaskStatus is the lifecycle state of a coordination task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskDeleted    TaskStatus = "deleted"
)

// Task is a coordination record exchanged between workers via swarm commands.
type Task struct {
	ID          TaskID
	Subject     string
	Description string
	ActiveForm  string
	Status      TaskStatus
	Owner       *WorkerID
	BlockedBy   map[TaskID]struct{}
	Blocks      map[TaskID]struct{}
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy safe to hand to callers outside the store lock.
func (t *Task) Clone() *Task {
	cp := *t
	cp.BlockedBy = cloneSet(t.BlockedBy)
	cp.Blocks = cloneSet(t.Blocks)
	cp.Metadata = make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

func cloneSet(s map[TaskID]struct{}) map[TaskID]struct{} {
	out := make(map[TaskID]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Claimable reports whether the task satisfies the claim predicate (§4.2/§8):
// pending, unowned, and not blocked by anything.
func (t *Task) Claimable() bool {
	return t.Status == TaskPending && t.Owner == nil && len(t.BlockedBy) == 0
}

// TaskPatch describes a partial update to a Task. Nil fields are left
// untouched. MetadataPatch entries with a nil value delete the key.
type TaskPatch struct {
	Status        *TaskStatus
	Owner         **WorkerID // pointer-to-pointer lets callers explicitly clear ownership
	Subject       *string
	Description   *string
	ActiveForm    *string
	AddBlockedBy  []TaskID
	AddBlocks     []TaskID
	MetadataPatch map[string]*string
}

// TaskStore is the per-session, in-memory, synchronous coordination store (§4.2).
type TaskStore struct {
	mu      sync.Mutex
	tasks   map[TaskID]*Task
	counter int64
}

// NewTaskStore creates an empty Task Store for one session.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[TaskID]*Task)}
}

// Create adds a new pending task and returns a copy of it.
func (s *TaskStore) Create(subject, description, activeForm string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id := TaskID(strconv.FormatInt(s.counter, 10))
	now := time.Now().UTC()
	t := &Task{
		ID:          id,
		Subject:     subject,
		Description: description,
		ActiveForm:  activeForm,
		Status:      TaskPending,
		BlockedBy:   make(map[TaskID]struct{}),
		Blocks:      make(map[TaskID]struct{}),
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[id] = t
	return t.Clone()
}

// List returns all non-deleted tasks ordered by creation time.
func (s *TaskStore) List() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Status == TaskDeleted {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a copy of the task, or nil if it does not exist.
func (s *TaskStore) Get(id TaskID) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// reverseLinkOp is a deferred reverse-link mutation: applied after the
// primary record's own mutation, to avoid aliasing when a task references
// itself (§4.2, §9 "task-store link symmetry").
type reverseLinkOp struct {
	target     TaskID
	addToBlock bool // true: target.Blocks += id; false: target.BlockedBy += id
}

// Update applies patch to the task identified by id, maintaining blocks/
// blocked_by symmetry and clearing blocked_by references to any task that
// just completed. Missing referenced tasks (in id or in link lists) are
// silently ignored, per §4.2/§7 — the store is coordination-grade, not
// transactional.
func (s *TaskStore) Update(id TaskID, patch TaskPatch) *Task {
	s.mu.Lock()

	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	var deferredOps []reverseLinkOp
	now := time.Now().UTC()

	if patch.Subject != nil {
		t.Subject = *patch.Subject
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.ActiveForm != nil {
		t.ActiveForm = *patch.ActiveForm
	}
	if patch.Owner != nil {
		t.Owner = *patch.Owner
	}
	for k, v := range patch.MetadataPatch {
		if v == nil {
			delete(t.Metadata, k)
		} else {
			t.Metadata[k] = *v
		}
	}

	for _, blocker := range patch.AddBlockedBy {
		if blocker == id {
			continue // a task cannot coherently block itself; ignore
		}
		t.BlockedBy[blocker] = struct{}{}
		// inverse of "this is blocked_by blocker" is "blocker blocks this"
		deferredOps = append(deferredOps, reverseLinkOp{target: blocker, addToBlock: true})
	}
	for _, blocked := range patch.AddBlocks {
		if blocked == id {
			continue
		}
		t.Blocks[blocked] = struct{}{}
		// inverse of "this blocks blocked" is "blocked is blocked_by this"
		deferredOps = append(deferredOps, reverseLinkOp{target: blocked, addToBlock: false})
	}

	var completedNow bool
	if patch.Status != nil {
		completedNow = *patch.Status == TaskCompleted && t.Status != TaskCompleted
		t.Status = *patch.Status
	}

	t.UpdatedAt = now
	s.mu.Unlock()

	// Second pass: apply reverse links now that the primary record has been
	// released, so a task referencing itself never deadlocks or aliases.
	s.mu.Lock()
	for _, op := range deferredOps {
		other, ok := s.tasks[op.target]
		if !ok {
			continue
		}
		if op.addToBlock {
			other.Blocks[id] = struct{}{}
		} else {
			other.BlockedBy[id] = struct{}{}
		}
		other.UpdatedAt = now
	}

	if completedNow {
		for otherID, other := range s.tasks {
			if _, blocked := other.BlockedBy[id]; blocked {
				delete(other.BlockedBy, id)
				delete(t.Blocks, otherID)
				other.UpdatedAt = now
			}
		}
	}
	result := t.Clone()
	s.mu.Unlock()

	return result
}

// Claim atomically assigns the first claimable task to worker and
// transitions it to in_progress.
func (s *TaskStore) Claim(worker WorkerID) *Task {
	s.mu.Lock()

	var ids []TaskID
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseInt(string(ids[i]), 10, 64)
		b, _ := strconv.ParseInt(string(ids[j]), 10, 64)
		return a < b
	})

	var chosen *Task
	for _, id := range ids {
		t := s.tasks[id]
		if t.Claimable() {
			chosen = t
			break
		}
	}
	if chosen == nil {
		s.mu.Unlock()
		return nil
	}
	w := worker
	chosen.Owner = &w
	chosen.Status = TaskInProgress
	chosen.UpdatedAt = time.Now().UTC()
	result := chosen.Clone()
	s.mu.Unlock()
	return result
}

// Delete soft-deletes a task by setting its status to deleted.
func (s *TaskStore) Delete(id TaskID) *Task {
	deleted := TaskDeleted
	return s.Update(id, TaskPatch{Status: &deleted})
}

// String renders a task for debug output / swarm command text responses.
func (t *Task) String() string {
	owner := "none"
	if t.Owner != nil {
		owner = string(*t.Owner)
	}
	return fmt.Sprintf("#%s [%s] %s (owner=%s)", t.ID, t.Status, t.Subject, owner)
}
