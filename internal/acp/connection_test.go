package acp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/swarm"
)

type recordingSink struct {
	events []struct {
		subject string
		payload map[string]interface{}
	}
}

func (s *recordingSink) Emit(subject string, payload map[string]interface{}) {
	s.events = append(s.events, struct {
		subject string
		payload map[string]interface{}
	}{subject, payload})
}

func newTestConnection(t *testing.T) (*Connection, *recordingSink) {
	t.Helper()
	dir := t.TempDir()
	sink := &recordingSink{}
	tasks := coordination.NewTaskStore()
	inbox := coordination.NewInbox()
	interp := swarm.NewInterpreter(tasks, inbox)

	c := NewConnection("w1", sink, NewPermissionRegistry(), interp)
	c.mu.Lock()
	c.cwd = dir
	c.mu.Unlock()
	return c, sink
}

func TestResolvePathRejectsEscape(t *testing.T) {
	c, _ := newTestConnection(t)
	if _, err := c.resolvePath("../../etc/passwd"); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestResolvePathAllowsWithinRoot(t *testing.T) {
	c, _ := newTestConnection(t)
	c.mu.Lock()
	root := c.cwd
	c.mu.Unlock()

	resolved, err := c.resolvePath("sub/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != filepath.Join(root, "sub/file.txt") {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
}

func TestReadTextFileWholeFile(t *testing.T) {
	c, _ := newTestConnection(t)
	c.mu.Lock()
	root := c.cwd
	c.mu.Unlock()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\nthree"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := c.ReadTextFile(context.Background(), acpsdk.ReadTextFileRequest{Path: "a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "one\ntwo\nthree" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
}

func TestReadTextFileWithLineAndLimit(t *testing.T) {
	c, _ := newTestConnection(t)
	c.mu.Lock()
	root := c.cwd
	c.mu.Unlock()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\nthree\nfour"), 0o644); err != nil {
		t.Fatal(err)
	}

	line, limit := 2, 2
	resp, err := c.ReadTextFile(context.Background(), acpsdk.ReadTextFileRequest{Path: "a.txt", Line: &line, Limit: &limit})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "two\nthree" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
}

func TestReadTextFileLineBeyondEOF(t *testing.T) {
	c, _ := newTestConnection(t)
	c.mu.Lock()
	root := c.cwd
	c.mu.Unlock()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo"), 0o644); err != nil {
		t.Fatal(err)
	}

	line := 100
	resp, err := c.ReadTextFile(context.Background(), acpsdk.ReadTextFileRequest{Path: "a.txt", Line: &line})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "" {
		t.Fatalf("expected empty content past EOF, got %q", resp.Content)
	}
}

func TestCreateTerminalInterceptsSwarmCommand(t *testing.T) {
	c, sink := newTestConnection(t)

	resp, err := c.CreateTerminal(context.Background(), acpsdk.CreateTerminalRequest{
		Command: "swarm",
		Args:    []string{"task", "list"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TerminalId == "" {
		t.Fatal("expected a terminal id")
	}

	out, err := c.TerminalOutput(context.Background(), acpsdk.TerminalOutputRequest{TerminalId: resp.TerminalId})
	if err != nil {
		t.Fatal(err)
	}
	var decoded swarm.Result
	if err := json.Unmarshal([]byte(out.Output), &decoded); err != nil {
		t.Fatalf("expected JSON-encoded swarm result, got %q: %v", out.Output, err)
	}
	if !decoded.Success {
		t.Fatalf("expected swarm task list to succeed, got %+v", decoded)
	}

	foundActivity := false
	for _, e := range sink.events {
		if e.subject == "swarm-activity" {
			foundActivity = true
		}
	}
	if !foundActivity {
		t.Fatal("expected a swarm-activity event to be emitted")
	}
}

func TestKillUnknownTerminalSucceedsSilently(t *testing.T) {
	c, _ := newTestConnection(t)
	if _, err := c.KillTerminalCommand(context.Background(), acpsdk.KillTerminalCommandRequest{TerminalId: "nope"}); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
}
