package registry

import "testing"

func newTestRegistry() *Registry {
	r := NewRegistry(nil)
	r.LoadDefaults()
	return r
}

func TestListAllNotEmpty(t *testing.T) {
	r := newTestRegistry()
	if len(r.ListAll()) == 0 {
		t.Fatal("expected default agents to be registered")
	}
}

func TestClaudeIsKnown(t *testing.T) {
	r := newTestRegistry()
	d, ok := r.GetIncludingUnavailable("claude")
	if !ok {
		t.Fatal("expected claude to be a known agent")
	}
	if d.DefaultModelID != "claude-sonnet-4-5-20250929" {
		t.Fatalf("unexpected default model: %s", d.DefaultModelID)
	}
}

func TestUnknownAgentNotAvailable(t *testing.T) {
	r := newTestRegistry()
	if r.Available("does-not-exist") {
		t.Fatal("expected unknown agent to be unavailable")
	}
	if _, ok := r.Get("does-not-exist"); ok {
		t.Fatal("expected Get to fail for an unknown agent")
	}
}

func TestResolveModelFallsBackToDefault(t *testing.T) {
	r := newTestRegistry()
	d, _ := r.GetIncludingUnavailable("codex")
	if got := d.ResolveModel("not-a-real-model"); got != d.DefaultModelID {
		t.Fatalf("expected fallback to default model, got %s", got)
	}
	if got := d.ResolveModel("o3-pro"); got != "o3-pro" {
		t.Fatalf("expected explicit model to be honored, got %s", got)
	}
}

func TestBuildArgsAppendsModelFlag(t *testing.T) {
	r := newTestRegistry()
	d, _ := r.GetIncludingUnavailable("claude")
	args := d.BuildArgs("claude-opus-4-5-20251101")
	if len(args) < 2 || args[len(args)-2] != "--model" || args[len(args)-1] != "claude-opus-4-5-20251101" {
		t.Fatalf("expected model flag appended, got %v", args)
	}

	noFlag, _ := r.GetIncludingUnavailable("opencode")
	if got := noFlag.BuildArgs("default"); len(got) != len(noFlag.Args) {
		t.Fatalf("expected no flag appended when ModelCLIFlag is empty, got %v", got)
	}
}

func TestOutOfBandAuthFlag(t *testing.T) {
	r := newTestRegistry()
	d, _ := r.GetIncludingUnavailable("copilot")
	if !d.OutOfBandAuth {
		t.Fatal("expected copilot to be marked out-of-band auth")
	}
}
