package worker

import (
	"sync"
	"testing"

	"github.com/ralphswarm/conductor/internal/coordination"
)

// fakeCancelRegistry is a minimal in-memory CancelRegistry for tests.
type fakeCancelRegistry struct {
	mu   sync.Mutex
	chs  map[coordination.WorkerID]chan struct{}
}

func newFakeCancelRegistry() *fakeCancelRegistry {
	return &fakeCancelRegistry{chs: make(map[coordination.WorkerID]chan struct{})}
}

func (r *fakeCancelRegistry) Register(w coordination.WorkerID) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.chs[w] = ch
	return ch
}

func (r *fakeCancelRegistry) Unregister(w coordination.WorkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chs, w)
}

func (r *fakeCancelRegistry) fire(w coordination.WorkerID) {
	r.mu.Lock()
	ch, ok := r.chs[w]
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

func TestSupervisorMailboxAcceptsStopBeforeRun(t *testing.T) {
	cfg := Config{
		Worker:    coordination.WorkerID("w1"),
		SessionID: "s1",
		Cancels:   newFakeCancelRegistry(),
	}
	s := NewSupervisor(cfg)
	if s.mailbox == nil {
		t.Fatal("expected mailbox channel to be initialized")
	}
	// Send should not block given the buffered mailbox.
	s.Send(Stop{})
	select {
	case cmd := <-s.mailbox:
		if _, ok := cmd.(Stop); !ok {
			t.Fatalf("expected Stop, got %#v", cmd)
		}
	default:
		t.Fatal("expected Stop to be queued in the mailbox")
	}
}

func TestCancelRegistryRegisterUnregister(t *testing.T) {
	reg := newFakeCancelRegistry()
	w := coordination.WorkerID("w1")

	ch := reg.Register(w)
	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	reg.fire(w)
	<-done

	reg.Unregister(w)
	reg.mu.Lock()
	_, ok := reg.chs[w]
	reg.mu.Unlock()
	if ok {
		t.Fatal("expected channel to be removed after Unregister")
	}
}
