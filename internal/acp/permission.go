package acp

import (
	"sync"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/ralphswarm/conductor/internal/coordination"
)

// PermissionTimeout is the fixed wall-clock bound after which an
// unanswered permission request auto-approves (§4.5, §9).
const PermissionTimeout = 5 * time.Minute

// permissionSlot is the one-shot reply channel for a single outstanding
// permission request, keyed by WorkerId. Only one slot may be pending per
// worker at a time — a second request discards and replaces the first.
type permissionSlot struct {
	replyCh chan acpsdk.PermissionOptionId
	once    sync.Once
}

func (s *permissionSlot) reply(optionID acpsdk.PermissionOptionId) {
	s.once.Do(func() {
		s.replyCh <- optionID
		close(s.replyCh)
	})
}

// abandon closes replyCh without a value, so any Await parked on it wakes
// immediately via the closed-channel branch and auto-approves, instead of
// waiting out the full PermissionTimeout for a request that was superseded.
func (s *permissionSlot) abandon() {
	s.once.Do(func() {
		close(s.replyCh)
	})
}

// PermissionRegistry tracks the single pending permission request per worker.
type PermissionRegistry struct {
	mu    sync.Mutex
	slots map[coordination.WorkerID]*permissionSlot
}

// NewPermissionRegistry creates an empty registry.
func NewPermissionRegistry() *PermissionRegistry {
	return &PermissionRegistry{slots: make(map[coordination.WorkerID]*permissionSlot)}
}

// Register installs a fresh slot for worker, discarding and abandoning any
// previously pending slot for the same worker (§9 "permission slot replacement"):
// the old slot's replyCh is closed before the new one is installed, so an
// Await still parked on it resolves right away instead of riding out
// PermissionTimeout.
func (r *PermissionRegistry) Register(worker coordination.WorkerID) *permissionSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.slots[worker]; ok {
		old.abandon()
	}

	slot := &permissionSlot{replyCh: make(chan acpsdk.PermissionOptionId, 1)}
	r.slots[worker] = slot
	return slot
}

// Respond delivers the operator's chosen option to worker's pending slot, if
// any. Returns false if there was no pending request (already answered,
// timed out, or replaced).
func (r *PermissionRegistry) Respond(worker coordination.WorkerID, optionID string) bool {
	r.mu.Lock()
	slot, ok := r.slots[worker]
	if ok {
		delete(r.slots, worker)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	slot.reply(acpsdk.PermissionOptionId(optionID))
	return true
}

// release removes worker's slot if it still points at slot (i.e. it has not
// already been replaced by a newer request).
func (r *PermissionRegistry) release(worker coordination.WorkerID, slot *permissionSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[worker] == slot {
		delete(r.slots, worker)
	}
}

// autoApproveOption picks the first allow_once|allow_always option, falling
// back to synthesizing "allow_once" if the offered list is somehow empty of
// allow options.
func autoApproveOption(options []acpsdk.PermissionOption) acpsdk.PermissionOptionId {
	for _, opt := range options {
		if opt.Kind == acpsdk.PermissionOptionKindAllowOnce || opt.Kind == acpsdk.PermissionOptionKindAllowAlways {
			return opt.OptionId
		}
	}
	return acpsdk.PermissionOptionId("allow_once")
}

// Await suspends until the operator answers, the slot is replaced out from
// under it, or PermissionTimeout elapses — whichever comes first. It always
// returns a concrete option id; it never reports an error (§4.5).
func (r *PermissionRegistry) Await(worker coordination.WorkerID, slot *permissionSlot, options []acpsdk.PermissionOption) acpsdk.PermissionOptionId {
	defer r.release(worker, slot)

	select {
	case id, ok := <-slot.replyCh:
		if !ok {
			return autoApproveOption(options)
		}
		return id
	case <-time.After(PermissionTimeout):
		slot.reply(autoApproveOption(options))
		// The reply() above satisfies any racing receiver; read our own copy back.
		return <-slot.replyCh
	}
}
