// Package worker implements the Worker Supervisor (§4.6): the persistent,
// single-threaded driver for one (session, agent) pairing. It owns the ACP
// connection, sequences spawn → initialize → authenticate →
// open-or-resume-session → prompt loop, and services a command mailbox of
// operator requests.
package worker

import (
	"context"
	"fmt"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/ralphswarm/conductor/internal/acp"
	"github.com/ralphswarm/conductor/internal/agent/registry"
	"github.com/ralphswarm/conductor/internal/common/constants"
	"github.com/ralphswarm/conductor/internal/conductorerr"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/events"
	"github.com/ralphswarm/conductor/internal/swarm"
)

// CancelRegistry is the orchestrator-owned map of per-worker cancellation
// channels (§9 "the cancel channel is owned by the orchestrator, keyed by
// WorkerId"). The supervisor registers a fresh channel for every Prompt and
// unregisters it once the prompt settles.
type CancelRegistry interface {
	Register(worker coordination.WorkerID) <-chan struct{}
	Unregister(worker coordination.WorkerID)
}

// StartupMode selects one of the three startup sequences in §4.6.
type StartupMode int

const (
	StartupNewSession StartupMode = iota
	StartupResume
	StartupReconnect
)

// Config is everything a Supervisor needs to drive one worker's lifecycle.
type Config struct {
	Worker    coordination.WorkerID
	SessionID string

	Agent    registry.AgentDescriptor
	ModelID  string
	Cwd      string
	ExtraEnv map[string]string

	Sink        acp.EventSink
	Permissions *acp.PermissionRegistry
	Swarm       *swarm.Interpreter
	Cancels     CancelRegistry

	// Preamble, when non-empty, is concatenated ahead of InitialPrompt and
	// sent as the first prompt (new-session startup only, §4.6 step 5).
	Preamble      string
	InitialPrompt string

	// ResumeSessionID is required for StartupResume; StartupReconnect opens
	// a new session and does not read it.
	ResumeSessionID acpsdk.SessionId
}

// Supervisor is the per-worker driver (§4.6). Run pins it to the calling
// goroutine for its entire lifetime — callers must dedicate a goroutine (and
// conceptually an OS thread, per §5) to each Supervisor.
type Supervisor struct {
	cfg  Config
	conn *acp.Connection

	mailbox chan Command
}

// NewSupervisor builds a Supervisor. Call Run to start it.
func NewSupervisor(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		conn:    acp.NewConnection(cfg.Worker, cfg.Sink, cfg.Permissions, cfg.Swarm),
		mailbox: make(chan Command, 16),
	}
}

// Send posts cmd to the mailbox. Commands are serviced strictly in FIFO
// order (§8).
func (s *Supervisor) Send(cmd Command) {
	s.mailbox <- cmd
}

// AcpSessionID returns the connection's current AcpSessionId, or "" before
// NewSession/LoadSession has completed.
func (s *Supervisor) AcpSessionID() string {
	return string(s.conn.SessionID())
}

func (s *Supervisor) emitStatus(status string, errMsg string) {
	payload := map[string]interface{}{
		"session_id": s.cfg.SessionID,
		"worker_id":  string(s.cfg.Worker),
		"status":     status,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if s.cfg.Sink != nil {
		s.cfg.Sink.Emit(events.WorkerStatusChange, payload)
	}
}

// handleWorkerFailure is the single worker-fatal error path (§7): mark the
// worker failed, unregister its cancel channel, and emit the status change.
// The subprocess itself is killed by Run's deferred s.conn.Kill().
func (s *Supervisor) handleWorkerFailure(message string) {
	if s.cfg.Cancels != nil {
		s.cfg.Cancels.Unregister(s.cfg.Worker)
	}
	s.emitStatus(events.StatusFailed, message)
}

// Run executes the startup sequence for mode and, on success, enters the
// mailbox loop. It returns only once the supervisor has fully exited; the
// subprocess is killed on every exit path, successful or not (§4.6).
func (s *Supervisor) Run(ctx context.Context, mode StartupMode) error {
	defer s.conn.Kill()

	launchCtx, cancelLaunch := context.WithTimeout(ctx, constants.AgentLaunchTimeout)
	defer cancelLaunch()

	if err := s.conn.Spawn(launchCtx, s.cfg.Agent, s.cfg.ModelID, s.cfg.Cwd, s.cfg.ExtraEnv); err != nil {
		s.handleWorkerFailure(err.Error())
		return conductorerr.WithKind(conductorerr.SpawnFailed, err)
	}

	caps, authMethods, err := s.conn.Initialize(launchCtx)
	if err != nil {
		s.handleWorkerFailure(err.Error())
		return conductorerr.WithKind(conductorerr.InitializeFailed, err)
	}

	if len(authMethods) > 0 {
		if s.cfg.Agent.OutOfBandAuth {
			s.conn.MarkAuthenticated()
		} else if err := s.conn.Authenticate(ctx, string(authMethods[0].Id)); err != nil {
			s.handleWorkerFailure(err.Error())
			return conductorerr.WithKind(conductorerr.AuthenticationFailed, err)
		}
	}

	switch mode {
	case StartupResume, StartupReconnect:
		if mode == StartupResume && !caps.LoadSession {
			msg := fmt.Sprintf("Agent %s does not support session resumption", s.cfg.Agent.DisplayName)
			s.handleWorkerFailure(msg)
			return conductorerr.WithKind(conductorerr.NotSupported, conductorerr.ErrNotSupported)
		}
		if mode == StartupResume {
			if err := s.conn.LoadSession(ctx, s.cfg.ResumeSessionID, s.cfg.Cwd); err != nil {
				s.handleWorkerFailure(err.Error())
				return conductorerr.WithKind(conductorerr.SessionFailed, err)
			}
			s.emitStatus(events.StatusCompleted, "")
		} else {
			if _, err := s.conn.NewSession(ctx, s.cfg.Cwd, nil); err != nil {
				s.handleWorkerFailure(err.Error())
				return conductorerr.WithKind(conductorerr.SessionFailed, err)
			}
		}

	default: // StartupNewSession
		if _, err := s.conn.NewSession(ctx, s.cfg.Cwd, nil); err != nil {
			s.handleWorkerFailure(err.Error())
			return conductorerr.WithKind(conductorerr.SessionFailed, err)
		}

		first := s.cfg.InitialPrompt
		if s.cfg.Preamble != "" {
			first = s.cfg.Preamble + first
		}
		s.emitStatus(events.StatusRunning, "")
		if err := s.runPrompt(ctx, first, nil); err != nil {
			return err
		}
	}

	return s.mailboxLoop(ctx)
}

// mailboxLoop services commands strictly in the order they were enqueued
// (§8) until Cancel or Stop, or ctx is done.
func (s *Supervisor) mailboxLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-s.mailbox:
			switch c := cmd.(type) {
			case Prompt:
				err := s.runPrompt(ctx, c.Text, nil)
				c.Reply <- replyError(err)
				if err != nil {
					return err
				}

			case PromptWithImages:
				err := s.runPrompt(ctx, c.Text, c.Images)
				c.Reply <- replyError(err)
				if err != nil {
					return err
				}

			case SetMode:
				c.Reply <- s.conn.SetSessionMode(ctx, c.ModeID)

			case Authenticate:
				c.Reply <- s.conn.Authenticate(ctx, c.MethodID)

			case Cancel:
				_ = s.conn.Cancel(ctx)
				s.emitStatus(events.StatusCancelled, "")
				return conductorerr.WithKind(conductorerr.Cancelled, conductorerr.ErrCancelled)

			case Stop:
				return nil
			}
		}
	}
}

// replyError is what a Prompt/PromptWithImages command's Reply channel
// receives for a given runPrompt error. A clean cancellation still ends the
// mailbox loop (the caller sees that via the command's own response path,
// e.g. the orchestrator's worker-status event), but per §4.6 it is not
// reported as a failure of the prompt itself.
func replyError(err error) error {
	if conductorerr.KindOf(err) == conductorerr.Cancelled {
		return nil
	}
	return err
}

// runPrompt races the connection's prompt request against a fresh
// cancellation channel registered with the orchestrator for this worker
// (§4.6, §9 "cancellation by racing, not by interrupt").
func (s *Supervisor) runPrompt(ctx context.Context, text string, images []Image) error {
	var cancelCh <-chan struct{}
	if s.cfg.Cancels != nil {
		cancelCh = s.cfg.Cancels.Register(s.cfg.Worker)
		defer s.cfg.Cancels.Unregister(s.cfg.Worker)
	}

	type result struct {
		reason acpsdk.StopReason
		err    error
	}
	done := make(chan result, 1)

	go func() {
		var reason acpsdk.StopReason
		var err error
		if len(images) > 0 {
			acpImages := make([]acp.Image, len(images))
			for i, img := range images {
				acpImages[i] = acp.Image{Data: img.Data, MimeType: img.MimeType}
			}
			reason, err = s.conn.PromptWithImages(ctx, text, acpImages)
		} else {
			reason, err = s.conn.Prompt(ctx, text)
		}
		done <- result{reason: reason, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.emitStatus(events.StatusFailed, r.err.Error())
			return conductorerr.WithKind(conductorerr.PromptFailed, r.err)
		}
		s.conn.AccumulatedText() // clear the accumulated buffer (§4.6)
		s.emitStatus(events.StatusCompleted, "")
		return nil

	case <-cancelCh:
		_ = s.conn.Cancel(ctx)
		s.emitStatus(events.StatusCancelled, "")
		return conductorerr.WithKind(conductorerr.Cancelled, conductorerr.ErrCancelled)
	}
}
