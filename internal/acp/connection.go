// Package acp owns one ACP connection per agent subprocess (§4.5): the
// dual-role JSON-RPC transport that is simultaneously a client (sending
// initialize/prompt/etc.) and a server (handling the agent's requestPermission,
// createTerminal, and friends).
package acp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/ralphswarm/conductor/internal/agent/registry"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/events"
	"github.com/ralphswarm/conductor/internal/swarm"
)

// Image is a single base64-encoded image content block for PromptWithImages.
type Image struct {
	Data     string
	MimeType string
}

// terminalState is a live or fake terminal registered by CreateTerminal.
type terminalState struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	buf      bytes.Buffer
	exitCode *int
	waitCh   chan struct{}

	fake       bool
	fakeOutput string
}

// Connection is one agent subprocess's ACP transport plus the host-side
// callback implementation the agent invokes (§4.5). It is not safe to use
// from more than one goroutine concurrently — callers must pin it to the
// Worker Supervisor's single-threaded executor (§5, §9).
type Connection struct {
	worker coordination.WorkerID

	sink        EventSink
	permissions *PermissionRegistry
	swarmInterp *swarm.Interpreter

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	conn   *acpsdk.ClientSideConnection

	mu              sync.Mutex
	acpSessionID    acpsdk.SessionId
	capabilities    acpsdk.AgentCapabilities
	authMethods     []acpsdk.AuthMethod
	isAuthenticated bool
	cwd             string
	accumulated     strings.Builder

	termMu    sync.Mutex
	terminals map[string]*terminalState
	termSeq   int64
}

// NewConnection creates an unstarted connection bound to worker's event
// stream and coordination substrate. Call Spawn before anything else.
func NewConnection(worker coordination.WorkerID, sink EventSink, permissions *PermissionRegistry, swarmInterp *swarm.Interpreter) *Connection {
	return &Connection{
		worker:      worker,
		sink:        sink,
		permissions: permissions,
		swarmInterp: swarmInterp,
		terminals:   make(map[string]*terminalState),
	}
}

var _ acpsdk.Client = (*Connection)(nil)

// Spawn starts the agent subprocess described by d, wires its stdio into a
// fresh ClientSideConnection, and records cwd as the shared default for
// agent-initiated terminals. Model env-var and CLI-flag injection both apply
// when the descriptor defines them (§4.1).
func (c *Connection) Spawn(ctx context.Context, d registry.AgentDescriptor, modelID, cwd string, extraEnv map[string]string) error {
	executable := d.Executable
	args := d.BuildArgs(modelID)

	cmd := exec.Command(executable, args...)
	cmd.Dir = cwd
	cmd.Env = d.BuildEnv(modelID, extraEnv)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("acp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("acp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("acp: spawn %s: %w", executable, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.mu.Lock()
	c.cwd = cwd
	c.mu.Unlock()

	c.conn = acpsdk.NewClientSideConnection(c, stdin, stdout)
	c.conn.SetLogger(slog.Default().With("component", "acp-connection", "worker", string(c.worker)))
	return nil
}

// Initialize performs the ACP handshake and caches the agent's capabilities
// and offered auth methods.
func (c *Connection) Initialize(ctx context.Context) (acpsdk.AgentCapabilities, []acpsdk.AuthMethod, error) {
	resp, err := c.conn.Initialize(ctx, acpsdk.InitializeRequest{
		ProtocolVersion: acpsdk.ProtocolVersionNumber,
		ClientInfo: &acpsdk.Implementation{
			Name:    "ralphswarm-conductor",
			Version: "0.1.0",
		},
		ClientCapabilities: acpsdk.ClientCapabilities{
			Fs: acpsdk.FileSystemCapability{
				ReadTextFile:  true,
				WriteTextFile: true,
			},
			Terminal: true,
		},
	})
	if err != nil {
		return acpsdk.AgentCapabilities{}, nil, fmt.Errorf("acp: initialize: %w", err)
	}

	c.mu.Lock()
	c.capabilities = resp.AgentCapabilities
	c.authMethods = resp.AuthMethods
	if len(resp.AuthMethods) == 0 {
		c.isAuthenticated = true
	}
	c.mu.Unlock()

	return resp.AgentCapabilities, resp.AuthMethods, nil
}

// Capabilities returns the cached agent capabilities from Initialize.
func (c *Connection) Capabilities() acpsdk.AgentCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// AuthMethods returns the cached offered auth methods from Initialize.
func (c *Connection) AuthMethods() []acpsdk.AuthMethod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authMethods
}

// IsAuthenticated reports whether authentication has been completed or was
// never required (empty auth_methods, §6).
func (c *Connection) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAuthenticated
}

// Authenticate performs the programmatic auth handshake with the given
// method id.
func (c *Connection) Authenticate(ctx context.Context, methodID string) error {
	_, err := c.conn.Authenticate(ctx, acpsdk.AuthenticateRequest{
		MethodId: acpsdk.AuthMethodId(methodID),
	})
	if err != nil {
		return fmt.Errorf("acp: authenticate: %w", err)
	}
	c.mu.Lock()
	c.isAuthenticated = true
	c.mu.Unlock()
	return nil
}

// MarkAuthenticated records authentication as satisfied without calling the
// agent — used for out-of-band-auth registry entries (§4.1 step 3).
func (c *Connection) MarkAuthenticated() {
	c.mu.Lock()
	c.isAuthenticated = true
	c.mu.Unlock()
}

// NewSession opens a fresh ACP session rooted at cwd.
func (c *Connection) NewSession(ctx context.Context, cwd string, mcpServers []acpsdk.McpServer) (acpsdk.SessionId, error) {
	if mcpServers == nil {
		mcpServers = []acpsdk.McpServer{}
	}
	resp, err := c.conn.NewSession(ctx, acpsdk.NewSessionRequest{
		Cwd:        cwd,
		McpServers: mcpServers,
	})
	if err != nil {
		return "", fmt.Errorf("acp: new session: %w", err)
	}
	c.mu.Lock()
	c.acpSessionID = resp.SessionId
	c.cwd = cwd
	c.mu.Unlock()
	return resp.SessionId, nil
}

// LoadSession resumes sessionID. Callers must first check Capabilities().LoadSession.
func (c *Connection) LoadSession(ctx context.Context, sessionID acpsdk.SessionId, cwd string) error {
	_, err := c.conn.LoadSession(ctx, acpsdk.LoadSessionRequest{
		SessionId: sessionID,
		Cwd:       cwd,
	})
	if err != nil {
		return fmt.Errorf("acp: load session: %w", err)
	}
	c.mu.Lock()
	c.acpSessionID = sessionID
	c.cwd = cwd
	c.mu.Unlock()
	return nil
}

// SetSessionMode switches the active session mode.
func (c *Connection) SetSessionMode(ctx context.Context, modeID string) error {
	_, err := c.conn.SetSessionMode(ctx, acpsdk.SetSessionModeRequest{
		SessionId: c.SessionID(),
		ModeId:    acpsdk.SessionModeId(modeID),
	})
	if err != nil {
		return fmt.Errorf("acp: set session mode: %w", err)
	}
	return nil
}

// SessionID returns the currently open ACP session id.
func (c *Connection) SessionID() acpsdk.SessionId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acpSessionID
}

// Prompt sends text as the prompt content and returns the stop reason.
func (c *Connection) Prompt(ctx context.Context, text string) (acpsdk.StopReason, error) {
	return c.promptBlocks(ctx, []acpsdk.ContentBlock{acpsdk.TextBlock(text)})
}

// PromptWithImages sends text plus image blocks, but only includes the
// images when the cached capability says the agent accepts image content
// (§4.5 "prompts carry content blocks ... only sent when the cached
// capability says the agent accepts them").
func (c *Connection) PromptWithImages(ctx context.Context, text string, images []Image) (acpsdk.StopReason, error) {
	blocks := []acpsdk.ContentBlock{acpsdk.TextBlock(text)}

	if acceptsImages(c.Capabilities()) {
		for _, img := range images {
			blocks = append(blocks, acpsdk.ContentBlock{
				Image: &acpsdk.ImageContent{
					Data:     img.Data,
					MimeType: img.MimeType,
				},
			})
		}
	}
	return c.promptBlocks(ctx, blocks)
}

func acceptsImages(caps acpsdk.AgentCapabilities) bool {
	return caps.PromptCapabilities.Image
}

func (c *Connection) promptBlocks(ctx context.Context, blocks []acpsdk.ContentBlock) (acpsdk.StopReason, error) {
	resp, err := c.conn.Prompt(ctx, acpsdk.PromptRequest{
		SessionId: c.SessionID(),
		Prompt:    blocks,
	})
	if err != nil {
		return "", err
	}
	return resp.StopReason, nil
}

// Cancel sends the ACP cancel notification for the active session (§4.6, §9
// "cancellation by racing"). It does not itself kill the subprocess; the
// Worker Supervisor owns that decision.
func (c *Connection) Cancel(ctx context.Context) error {
	return c.conn.Cancel(ctx, acpsdk.CancelNotification{SessionId: c.SessionID()})
}

// AccumulatedText returns and clears the text buffer accumulated from
// AgentMessageChunk notifications during the just-finished prompt.
func (c *Connection) AccumulatedText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.accumulated.String()
	c.accumulated.Reset()
	return s
}

// Kill terminates the subprocess and every terminal it owns. Idempotent.
func (c *Connection) Kill() {
	c.termMu.Lock()
	for _, ts := range c.terminals {
		killTerminalProcess(ts)
	}
	c.termMu.Unlock()

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
}

// ---- host-side callback implementation (acpsdk.Client) ----

// RequestPermission implements acpsdk.Client (§4.5). It never returns a
// protocol error: the worst case is a timeout-driven auto-approval.
func (c *Connection) RequestPermission(ctx context.Context, req acpsdk.RequestPermissionRequest) (acpsdk.RequestPermissionResponse, error) {
	title := ""
	if req.ToolCall.Title != nil {
		title = *req.ToolCall.Title
	}

	options := make([]map[string]interface{}, 0, len(req.Options))
	for _, opt := range req.Options {
		options = append(options, map[string]interface{}{
			"id":   string(opt.OptionId),
			"name": opt.Name,
			"kind": string(opt.Kind),
		})
	}
	c.emit(events.WorkerPermissionSubject(string(c.worker)), map[string]interface{}{
		"title":        title,
		"tool_call_id": string(req.ToolCall.ToolCallId),
		"options":      options,
	})

	slot := c.permissions.Register(c.worker)
	optionID := c.permissions.Await(c.worker, slot, req.Options)

	return acpsdk.RequestPermissionResponse{
		Outcome: acpsdk.RequestPermissionOutcome{
			Selected: &acpsdk.RequestPermissionOutcomeSelected{OptionId: optionID},
		},
	}, nil
}

// SessionUpdate implements acpsdk.Client, dispatching every tagged
// notification variant to a typed EventSink event (§4.5).
func (c *Connection) SessionUpdate(ctx context.Context, n acpsdk.SessionNotification) error {
	u := n.Update
	streamSubject := events.WorkerStreamSubject(string(c.worker))

	switch {
	case u.AgentMessageChunk != nil:
		text := blockText(u.AgentMessageChunk.Content)
		c.mu.Lock()
		c.accumulated.WriteString(text)
		c.mu.Unlock()
		c.emit(streamSubject, map[string]interface{}{"type": events.StreamDelta, "text": text})

	case u.AgentThoughtChunk != nil:
		c.emit(streamSubject, map[string]interface{}{"type": events.StreamThinking, "text": blockText(u.AgentThoughtChunk.Content)})

	case u.ToolCall != nil:
		c.emit(events.WorkerToolSubject(string(c.worker)), flattenToolCall(u.ToolCall))

	case u.ToolCallUpdate != nil:
		c.emit(events.WorkerToolSubject(string(c.worker)), flattenToolCallUpdate(u.ToolCallUpdate))

	case u.Plan != nil:
		entries := make([]map[string]interface{}, 0, len(u.Plan.Entries))
		for _, e := range u.Plan.Entries {
			entries = append(entries, map[string]interface{}{
				"content":  e.Content,
				"status":   string(e.Status),
				"priority": string(e.Priority),
			})
		}
		c.emit(streamSubject, map[string]interface{}{"type": events.StreamPlan, "entries": entries})

	case u.AvailableCommandsUpdate != nil:
		cmds := make([]map[string]interface{}, 0, len(u.AvailableCommandsUpdate.AvailableCommands))
		for _, cmd := range u.AvailableCommandsUpdate.AvailableCommands {
			cmds = append(cmds, map[string]interface{}{"name": cmd.Name, "description": cmd.Description})
		}
		c.emit("worker-commands-"+string(c.worker), map[string]interface{}{"commands": cmds})

	case u.CurrentModeUpdate != nil:
		c.emit("worker-mode-"+string(c.worker), map[string]interface{}{"mode_id": string(u.CurrentModeUpdate.CurrentModeId)})

	case u.UserMessageChunk != nil:
		c.emit("worker-user-message-"+string(c.worker), map[string]interface{}{"text": blockText(u.UserMessageChunk.Content)})

	default:
		// unknown variants are tolerated silently (§4.5)
	}
	return nil
}

func blockText(block acpsdk.ContentBlock) string {
	if block.Text != nil {
		return block.Text.Text
	}
	return ""
}

func flattenToolCall(tc *acpsdk.ToolCall) map[string]interface{} {
	out := map[string]interface{}{
		"tool_call_id": string(tc.ToolCallId),
		"kind":         string(tc.Kind),
		"status":       string(tc.Status),
	}
	if tc.Title != nil {
		out["title"] = *tc.Title
	}
	if tc.RawInput != nil {
		out["raw_input"] = tc.RawInput
	}
	if len(tc.Locations) > 0 {
		locs := make([]map[string]interface{}, 0, len(tc.Locations))
		for _, loc := range tc.Locations {
			l := map[string]interface{}{"path": loc.Path}
			if loc.Line != nil {
				l["line"] = *loc.Line
			}
			locs = append(locs, l)
		}
		out["locations"] = locs
	}
	if content := flattenToolCallContent(tc.Content); len(content) > 0 {
		out["content"] = content
	}
	return out
}

func flattenToolCallUpdate(tc *acpsdk.ToolCallUpdate) map[string]interface{} {
	out := map[string]interface{}{"tool_call_id": string(tc.ToolCallId)}
	if tc.Status != nil {
		out["status"] = string(*tc.Status)
	}
	if tc.Title != nil {
		out["title"] = *tc.Title
	}
	if tc.RawOutput != nil {
		out["raw_output"] = tc.RawOutput
	}
	// updates omit the content field entirely when empty so the UI
	// preserves the last known content (§4.5).
	if content := flattenToolCallContent(tc.Content); len(content) > 0 {
		out["content"] = content
	}
	return out
}

func flattenToolCallContent(items []acpsdk.ToolCallContent) []map[string]interface{} {
	var out []map[string]interface{}
	for _, item := range items {
		switch {
		case item.Content != nil:
			out = append(out, map[string]interface{}{"type": "content", "text": blockText(item.Content.Content)})
		case item.Diff != nil:
			out = append(out, map[string]interface{}{
				"type":     "diff",
				"path":     item.Diff.Path,
				"old_text": item.Diff.OldText,
				"new_text": item.Diff.NewText,
			})
		case item.Terminal != nil:
			out = append(out, map[string]interface{}{"type": "terminal", "terminal_id": item.Terminal.TerminalId})
		}
	}
	return out
}

func (c *Connection) emit(subject string, payload map[string]interface{}) {
	if c.sink != nil {
		c.sink.Emit(subject, payload)
	}
}

// resolvePath makes relative paths relative to the connection's cwd and
// rejects paths that resolve outside of it, mirroring the teacher's
// workspace-root guard.
func (c *Connection) resolvePath(reqPath string) (string, error) {
	c.mu.Lock()
	root := c.cwd
	c.mu.Unlock()

	var resolved string
	if filepath.IsAbs(reqPath) {
		resolved = filepath.Clean(reqPath)
	} else {
		resolved = filepath.Join(root, reqPath)
	}
	cleanRoot := filepath.Clean(root)
	if resolved != cleanRoot && !strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves outside workspace root %q", reqPath, root)
	}
	return resolved, nil
}

// ReadTextFile implements acpsdk.Client (§4.5).
func (c *Connection) ReadTextFile(ctx context.Context, req acpsdk.ReadTextFileRequest) (acpsdk.ReadTextFileResponse, error) {
	path, err := c.resolvePath(req.Path)
	if err != nil {
		return acpsdk.ReadTextFileResponse{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return acpsdk.ReadTextFileResponse{}, err
	}

	content := string(raw)
	if req.Line != nil || req.Limit != nil {
		lines := strings.Split(content, "\n")
		start := 0
		if req.Line != nil && *req.Line > 0 {
			start = *req.Line - 1
			if start > len(lines) {
				start = len(lines)
			}
		}
		end := len(lines)
		if req.Limit != nil && *req.Limit > 0 && start+*req.Limit < end {
			end = start + *req.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	return acpsdk.ReadTextFileResponse{Content: content}, nil
}

// WriteTextFile implements acpsdk.Client (§4.5).
func (c *Connection) WriteTextFile(ctx context.Context, req acpsdk.WriteTextFileRequest) (acpsdk.WriteTextFileResponse, error) {
	path, err := c.resolvePath(req.Path)
	if err != nil {
		return acpsdk.WriteTextFileResponse{}, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return acpsdk.WriteTextFileResponse{}, err
		}
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		return acpsdk.WriteTextFileResponse{}, err
	}
	return acpsdk.WriteTextFileResponse{}, nil
}

func (c *Connection) nextTerminalID(pid int) string {
	c.termMu.Lock()
	defer c.termMu.Unlock()
	c.termSeq++
	return "term_" + strconv.FormatInt(int64(pid), 10) + "_" + strconv.FormatInt(c.termSeq, 10)
}

// CreateTerminal implements acpsdk.Client (§4.5). Before spawning a real
// shell it tests the joined command against the swarm interpreter — this is
// the interception point that keeps a "swarm" sub-command from ever
// reaching an OS process (§9 "swarm interception precedence").
func (c *Connection) CreateTerminal(ctx context.Context, req acpsdk.CreateTerminalRequest) (acpsdk.CreateTerminalResponse, error) {
	full := req.Command
	if len(req.Args) > 0 {
		full = req.Command + " " + strings.Join(req.Args, " ")
	}

	if swarm.IsSwarmCommand(full) && c.swarmInterp != nil {
		result, _ := c.swarmInterp.ExecuteString(full, c.worker)
		encoded, _ := json.Marshal(result)

		id := c.nextTerminalID(os.Getpid())
		ts := &terminalState{fake: true, fakeOutput: string(encoded), waitCh: make(chan struct{})}
		exitCode := 0
		ts.exitCode = &exitCode
		close(ts.waitCh)

		c.termMu.Lock()
		c.terminals[id] = ts
		c.termMu.Unlock()

		c.emit(events.SwarmActivity, map[string]interface{}{
			"worker_id": string(c.worker),
			"command":   full,
			"result":    result,
			"timestamp": time.Now().UTC(),
		})
		c.emit(events.TerminalCreated, map[string]interface{}{"terminal_id": id})
		return acpsdk.CreateTerminalResponse{TerminalId: acpsdk.TerminalId(id)}, nil
	}

	cwd := req.Cwd
	if cwd == "" {
		c.mu.Lock()
		cwd = c.cwd
		c.mu.Unlock()
	}

	shellCmd, shellArg := "/bin/sh", "-c"
	cmd := exec.Command(shellCmd, shellArg, full)
	cmd.Dir = cwd
	env := os.Environ()
	for _, kv := range req.Env {
		env = append(env, kv.Name+"="+kv.Value)
	}
	cmd.Env = env

	ts := &terminalState{waitCh: make(chan struct{})}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return acpsdk.CreateTerminalResponse{}, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return acpsdk.CreateTerminalResponse{}, err
	}
	ts.cmd = cmd

	go func() {
		buf := make([]byte, 4096)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				ts.mu.Lock()
				ts.buf.Write(buf[:n])
				ts.mu.Unlock()
			}
			if readErr != nil {
				break
			}
		}
	}()
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		ts.mu.Lock()
		ts.exitCode = &code
		ts.mu.Unlock()
		close(ts.waitCh)
	}()

	id := "term_" + strconv.Itoa(cmd.Process.Pid)
	c.termMu.Lock()
	c.terminals[id] = ts
	c.termMu.Unlock()

	c.emit(events.TerminalCreated, map[string]interface{}{"terminal_id": id})
	return acpsdk.CreateTerminalResponse{TerminalId: acpsdk.TerminalId(id)}, nil
}

func (c *Connection) lookupTerminal(id string) (*terminalState, bool) {
	c.termMu.Lock()
	defer c.termMu.Unlock()
	ts, ok := c.terminals[id]
	return ts, ok
}

// TerminalOutput implements acpsdk.Client: a best-effort, non-blocking read
// of whatever output has accumulated, plus exit status if the child has
// already exited (§4.5, §8 "never produced bytes" boundary case).
func (c *Connection) TerminalOutput(ctx context.Context, req acpsdk.TerminalOutputRequest) (acpsdk.TerminalOutputResponse, error) {
	id := string(req.TerminalId)
	ts, ok := c.lookupTerminal(id)
	if !ok {
		c.emit("terminal-output", map[string]interface{}{"terminal_id": id, "output": ""})
		return acpsdk.TerminalOutputResponse{}, nil
	}

	if ts.fake {
		c.emit(events.TerminalOutput, map[string]interface{}{"terminal_id": id, "output": ts.fakeOutput})
		return acpsdk.TerminalOutputResponse{Output: ts.fakeOutput, ExitStatus: &acpsdk.TerminalExitStatus{ExitCode: ts.exitCode}}, nil
	}

	ts.mu.Lock()
	output := ts.buf.String()
	exitCode := ts.exitCode
	ts.mu.Unlock()

	resp := acpsdk.TerminalOutputResponse{Output: output}
	if exitCode != nil {
		resp.ExitStatus = &acpsdk.TerminalExitStatus{ExitCode: exitCode}
	}
	c.emit(events.TerminalOutput, map[string]interface{}{"terminal_id": id, "output": output})
	return resp, nil
}

// WaitForTerminalExit implements acpsdk.Client: blocks until the child (real
// or fake) has exited.
func (c *Connection) WaitForTerminalExit(ctx context.Context, req acpsdk.WaitForTerminalExitRequest) (acpsdk.WaitForTerminalExitResponse, error) {
	id := string(req.TerminalId)
	ts, ok := c.lookupTerminal(id)
	if !ok {
		return acpsdk.WaitForTerminalExitResponse{}, nil
	}

	select {
	case <-ts.waitCh:
	case <-ctx.Done():
		return acpsdk.WaitForTerminalExitResponse{}, ctx.Err()
	}

	ts.mu.Lock()
	exitCode := ts.exitCode
	ts.mu.Unlock()

	c.emit(events.TerminalExited, map[string]interface{}{"terminal_id": id})
	return acpsdk.WaitForTerminalExitResponse{ExitCode: exitCode}, nil
}

func killTerminalProcess(ts *terminalState) {
	if ts.fake || ts.cmd == nil || ts.cmd.Process == nil {
		return
	}
	_ = ts.cmd.Process.Kill()
}

// KillTerminalCommand implements acpsdk.Client. Killing an unknown id
// succeeds silently (§8 boundary behaviour).
func (c *Connection) KillTerminalCommand(ctx context.Context, req acpsdk.KillTerminalCommandRequest) (acpsdk.KillTerminalCommandResponse, error) {
	id := string(req.TerminalId)
	if ts, ok := c.lookupTerminal(id); ok {
		killTerminalProcess(ts)
	}
	c.emit(events.TerminalKilled, map[string]interface{}{"terminal_id": id})
	return acpsdk.KillTerminalCommandResponse{}, nil
}

// ReleaseTerminal implements acpsdk.Client: forgets the terminal. Idempotent.
func (c *Connection) ReleaseTerminal(ctx context.Context, req acpsdk.ReleaseTerminalRequest) (acpsdk.ReleaseTerminalResponse, error) {
	id := string(req.TerminalId)
	c.termMu.Lock()
	delete(c.terminals, id)
	c.termMu.Unlock()
	c.emit(events.TerminalReleased, map[string]interface{}{"terminal_id": id})
	return acpsdk.ReleaseTerminalResponse{}, nil
}
