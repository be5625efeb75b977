package orchestrator

import (
	"context"
	"testing"

	"github.com/ralphswarm/conductor/internal/acp"
	"github.com/ralphswarm/conductor/internal/agent/registry"
	"github.com/ralphswarm/conductor/internal/conductorerr"
	"github.com/ralphswarm/conductor/internal/coordination"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	reg := registry.NewRegistry(nil)
	return New(reg, acp.NopSink{}, acp.NewPermissionRegistry(), nil)
}

func TestCreateSessionUnknownAgent(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.CreateSession(context.Background(), "hello", "no-such-agent", "/tmp")
	if conductorerr.KindOf(err) != conductorerr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetSessionUnknown(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.GetSession("nope")
	if conductorerr.KindOf(err) != conductorerr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCancelWorkerWithNoRegisteredChannel(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.CancelWorker("sess", coordination.WorkerID("w1"))
	if conductorerr.KindOf(err) != conductorerr.NotFound {
		t.Fatalf("expected NotFound for unregistered worker, got %v", err)
	}
}

func TestRegisterUnregisterCancelChannel(t *testing.T) {
	o := newTestOrchestrator(t)
	w := coordination.WorkerID("w1")

	ch := o.Register(w)
	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	if err := o.CancelWorker("sess", w); err != nil {
		t.Fatalf("expected cancel to succeed: %v", err)
	}
	<-done

	o.Unregister(w)
	if err := o.CancelWorker("sess", w); conductorerr.KindOf(err) != conductorerr.NotFound {
		t.Fatalf("expected NotFound after unregister, got %v", err)
	}
}

func TestPersistedSessionCommandsWithoutProviderAreNotSupported(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.ListPersistedSessions(ctx); conductorerr.KindOf(err) != conductorerr.NotSupported {
		t.Fatalf("expected NotSupported, got %v", err)
	}
	if _, err := o.GetPersistedSession(ctx, "x"); conductorerr.KindOf(err) != conductorerr.NotSupported {
		t.Fatalf("expected NotSupported, got %v", err)
	}
	if err := o.DeletePersistedSession(ctx, "x"); conductorerr.KindOf(err) != conductorerr.NotSupported {
		t.Fatalf("expected NotSupported, got %v", err)
	}
	if _, err := o.ResumeSession(ctx, "x"); conductorerr.KindOf(err) != conductorerr.NotSupported {
		t.Fatalf("expected NotSupported, got %v", err)
	}
}
