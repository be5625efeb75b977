// Package orchestrator implements the Session Orchestrator (§4.7): a
// process-wide singleton holding every session's Task Store, Inbox,
// supervisor mailboxes, and per-worker cancellation channels behind one
// short-critical-section lock.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/google/uuid"
	"github.com/ralphswarm/conductor/internal/acp"
	"github.com/ralphswarm/conductor/internal/agent/registry"
	"github.com/ralphswarm/conductor/internal/conductorerr"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/persistence"
	"github.com/ralphswarm/conductor/internal/swarm"
	"github.com/ralphswarm/conductor/internal/worker"
)

// SessionStatus is the lifecycle state of an orchestrator Session.
type SessionStatus string

const (
	SessionPlanning SessionStatus = "planning"
	SessionRunning  SessionStatus = "running"
	SessionComplete SessionStatus = "completed"
	SessionFailed   SessionStatus = "failed"
)

// WorkerStatus mirrors the worker-status-change vocabulary (§6).
type WorkerStatus string

const (
	WorkerPending   WorkerStatus = "pending"
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
	WorkerCancelled WorkerStatus = "cancelled"
)

// Worker is the orchestrator's view of one (session, agent) pairing.
type Worker struct {
	ID        coordination.WorkerID
	AgentID   string
	Status    WorkerStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is the orchestrator's view of one conversation with one or more
// workers.
type Session struct {
	ID        string
	Prompt    string
	Cwd       string
	Status    SessionStatus
	Workers   []*Worker
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) firstWorker() *Worker {
	if len(s.Workers) == 0 {
		return nil
	}
	return s.Workers[0]
}

func (s *Session) workerByID(id coordination.WorkerID) *Worker {
	for _, w := range s.Workers {
		if w.ID == id {
			return w
		}
	}
	return nil
}

// sessionHandle bundles everything the orchestrator keeps per session
// outside the Session value itself: the supervisor mailboxes keyed by
// worker, and the session's own Task Store and Inbox (§4.2, §4.3).
type sessionHandle struct {
	session     *Session
	supervisors map[coordination.WorkerID]*worker.Supervisor
	tasks       *coordination.TaskStore
	inbox       *coordination.Inbox
}

// Orchestrator is the process-wide singleton described in §4.7. All
// exported methods take only as long as it takes to mutate the maps; no
// method awaits while holding mu.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*sessionHandle
	cancels  map[coordination.WorkerID]chan struct{}

	registry    *registry.Registry
	sink        acp.EventSink
	permissions *acp.PermissionRegistry
	persisted   persistence.Provider
}

// New builds an empty Orchestrator. persisted may be nil, in which case the
// persisted-session commands return NotSupported.
func New(reg *registry.Registry, sink acp.EventSink, permissions *acp.PermissionRegistry, persisted persistence.Provider) *Orchestrator {
	return &Orchestrator{
		sessions:    make(map[string]*sessionHandle),
		cancels:     make(map[coordination.WorkerID]chan struct{}),
		registry:    reg,
		sink:        sink,
		permissions: permissions,
		persisted:   persisted,
	}
}

// Register implements worker.CancelRegistry.
func (o *Orchestrator) Register(w coordination.WorkerID) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan struct{})
	o.cancels[w] = ch
	return ch
}

// Unregister implements worker.CancelRegistry.
func (o *Orchestrator) Unregister(w coordination.WorkerID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, w)
}

func (o *Orchestrator) fireCancel(w coordination.WorkerID) bool {
	o.mu.Lock()
	ch, ok := o.cancels[w]
	o.mu.Unlock()
	if !ok {
		return false
	}
	close(ch)
	return true
}

// CreateSession implements create_session (§6): a new Session with a single
// leader worker, spawned and driven to completion of its first prompt.
func (o *Orchestrator) CreateSession(ctx context.Context, prompt, agentID, cwd string) (*Session, error) {
	desc, ok := o.registry.Get(agentID)
	if !ok {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("agent %q not found or not available", agentID))
	}

	sessionID := uuid.New().String()
	workerID := coordination.WorkerID(uuid.New().String())

	sess := &Session{
		ID:        sessionID,
		Prompt:    prompt,
		Cwd:       cwd,
		Status:    SessionPlanning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	w := &Worker{ID: workerID, AgentID: agentID, Status: WorkerPending, CreatedAt: sess.CreatedAt, UpdatedAt: sess.CreatedAt}
	sess.Workers = append(sess.Workers, w)

	handle := &sessionHandle{
		session:     sess,
		supervisors: make(map[coordination.WorkerID]*worker.Supervisor),
		tasks:       coordination.NewTaskStore(),
		inbox:       coordination.NewInbox(),
	}
	handle.inbox.RegisterWorker(workerID)

	o.mu.Lock()
	o.sessions[sessionID] = handle
	o.mu.Unlock()

	interp := swarm.NewInterpreter(handle.tasks, handle.inbox)
	preamble := BuildCoordinationPreamble(workerID, sessionID, true, handle.tasks.List())

	sup := worker.NewSupervisor(worker.Config{
		Worker:        workerID,
		SessionID:     sessionID,
		Agent:         desc,
		ModelID:       desc.DefaultModelID,
		Cwd:           cwd,
		Sink:          o.sink,
		Permissions:   o.permissions,
		Swarm:         interp,
		Cancels:       o,
		Preamble:      preamble,
		InitialPrompt: prompt,
	})

	o.mu.Lock()
	handle.supervisors[workerID] = sup
	sess.Status = SessionRunning
	o.mu.Unlock()

	go func() {
		// The supervisor outlives whatever request context created it;
		// cancellation runs through the Cancels registry, not ctx.
		_ = sup.Run(context.Background(), worker.StartupNewSession)
		o.mu.Lock()
		w.Status = WorkerCompleted
		w.UpdatedAt = time.Now()
		o.mu.Unlock()
	}()

	return sess, nil
}

// SendPrompt implements send_prompt (§6): forwards text to the session's
// leader worker's mailbox and waits for the reply.
func (o *Orchestrator) SendPrompt(ctx context.Context, sessionID, text string) error {
	sup, w, err := o.leaderSupervisor(sessionID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	sup.Send(worker.Prompt{Text: text, Reply: reply})
	select {
	case err := <-reply:
		o.setWorkerStatus(sessionID, w.ID, err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendPromptWithImages implements send_prompt_with_images (§6).
func (o *Orchestrator) SendPromptWithImages(ctx context.Context, sessionID, text string, images []worker.Image) error {
	sup, w, err := o.leaderSupervisor(sessionID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	sup.Send(worker.PromptWithImages{Text: text, Images: images, Reply: reply})
	select {
	case err := <-reply:
		o.setWorkerStatus(sessionID, w.ID, err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSessionMode implements set_session_mode (§6).
func (o *Orchestrator) SetSessionMode(ctx context.Context, sessionID, modeID string) error {
	sup, _, err := o.leaderSupervisor(sessionID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	sup.Send(worker.SetMode{ModeID: modeID, Reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authenticate implements authenticate (§6).
func (o *Orchestrator) Authenticate(ctx context.Context, sessionID, methodID string) error {
	sup, _, err := o.leaderSupervisor(sessionID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	sup.Send(worker.Authenticate{MethodID: methodID, Reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelWorker implements cancel_worker (§6): fires the worker's
// cancellation channel, racing whatever prompt is in flight (§5, §9).
func (o *Orchestrator) CancelWorker(sessionID string, workerID coordination.WorkerID) error {
	if !o.fireCancel(workerID) {
		return conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("worker %q has no in-flight operation to cancel", workerID))
	}
	return nil
}

// RetryWorker implements retry_worker (§6): re-enters the named worker's
// mailbox loop via a reconnect startup using the same agent/cwd.
func (o *Orchestrator) RetryWorker(ctx context.Context, sessionID string, workerID coordination.WorkerID) error {
	handle, err := o.handle(sessionID)
	if err != nil {
		return err
	}
	o.mu.Lock()
	w := handle.session.workerByID(workerID)
	o.mu.Unlock()
	if w == nil {
		return conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("worker %q not found", workerID))
	}

	desc, ok := o.registry.Get(w.AgentID)
	if !ok {
		return conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("agent %q not found or not available", w.AgentID))
	}

	interp := swarm.NewInterpreter(handle.tasks, handle.inbox)
	sup := worker.NewSupervisor(worker.Config{
		Worker:      workerID,
		SessionID:   sessionID,
		Agent:       desc,
		ModelID:     desc.DefaultModelID,
		Cwd:         handle.session.Cwd,
		Sink:        o.sink,
		Permissions: o.permissions,
		Swarm:       interp,
		Cancels:     o,
	})

	o.mu.Lock()
	handle.supervisors[workerID] = sup
	w.Status = WorkerRunning
	o.mu.Unlock()

	go func() { _ = sup.Run(context.Background(), worker.StartupReconnect) }()
	return nil
}

// ReconnectWorker implements reconnect_worker (§6): starts a fresh
// supervisor for agentID against an existing session's cwd, with no
// preamble and no initial prompt (§4.6 "Startup (reconnect)").
func (o *Orchestrator) ReconnectWorker(ctx context.Context, sessionID, agentID, cwd string) (coordination.WorkerID, error) {
	handle, err := o.handle(sessionID)
	if err != nil {
		return "", err
	}
	desc, ok := o.registry.Get(agentID)
	if !ok {
		return "", conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("agent %q not found or not available", agentID))
	}

	workerID := coordination.WorkerID(uuid.New().String())
	w := &Worker{ID: workerID, AgentID: agentID, Status: WorkerRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	interp := swarm.NewInterpreter(handle.tasks, handle.inbox)
	sup := worker.NewSupervisor(worker.Config{
		Worker:      workerID,
		SessionID:   sessionID,
		Agent:       desc,
		ModelID:     desc.DefaultModelID,
		Cwd:         cwd,
		Sink:        o.sink,
		Permissions: o.permissions,
		Swarm:       interp,
		Cancels:     o,
	})

	o.mu.Lock()
	handle.session.Workers = append(handle.session.Workers, w)
	handle.supervisors[workerID] = sup
	o.mu.Unlock()
	handle.inbox.RegisterWorker(workerID)

	go func() { _ = sup.Run(context.Background(), worker.StartupReconnect) }()
	return workerID, nil
}

// ResumeSession implements resume_session (§6): reopens a persisted ACP
// session on a fresh supervisor (§4.6 "Startup (resume)"). No preamble and
// no initial prompt per the resolved Open Question (§9: "no preamble
// re-send on reconnect").
func (o *Orchestrator) ResumeSession(ctx context.Context, persistedID string) (*Session, error) {
	if o.persisted == nil {
		return nil, conductorerr.WithKind(conductorerr.NotSupported, fmt.Errorf("no persistence provider configured"))
	}
	ps, err := o.persisted.Get(ctx, persistedID)
	if err != nil {
		return nil, err
	}

	sessionID := ps.SessionID
	agentID := ps.AgentID
	cwd := ps.Cwd
	resumeSessionID := ps.AcpSessionID

	desc, ok := o.registry.Get(agentID)
	if !ok {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("agent %q not found or not available", agentID))
	}

	workerID := coordination.WorkerID(uuid.New().String())
	sess := &Session{
		ID:        sessionID,
		Cwd:       cwd,
		Status:    SessionRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	w := &Worker{ID: workerID, AgentID: agentID, Status: WorkerRunning, CreatedAt: sess.CreatedAt, UpdatedAt: sess.CreatedAt}
	sess.Workers = append(sess.Workers, w)

	handle := &sessionHandle{
		session:     sess,
		supervisors: make(map[coordination.WorkerID]*worker.Supervisor),
		tasks:       coordination.NewTaskStore(),
		inbox:       coordination.NewInbox(),
	}
	handle.inbox.RegisterWorker(workerID)

	o.mu.Lock()
	o.sessions[sessionID] = handle
	o.mu.Unlock()

	interp := swarm.NewInterpreter(handle.tasks, handle.inbox)
	sup := worker.NewSupervisor(worker.Config{
		Worker:          workerID,
		SessionID:       sessionID,
		Agent:           desc,
		ModelID:         desc.DefaultModelID,
		Cwd:             cwd,
		Sink:            o.sink,
		Permissions:     o.permissions,
		Swarm:           interp,
		Cancels:         o,
		ResumeSessionID: toACPSessionID(resumeSessionID),
	})

	o.mu.Lock()
	handle.supervisors[workerID] = sup
	o.mu.Unlock()

	go func() {
		_ = sup.Run(context.Background(), worker.StartupResume)
		o.mu.Lock()
		w.Status = WorkerCompleted
		w.UpdatedAt = time.Now()
		o.mu.Unlock()
	}()

	return sess, nil
}

// RespondToPermission implements respond_to_permission (§6): forwards the
// operator's chosen option to the PermissionRegistry's pending slot for
// worker_id (§4.5's Await/resolve mechanism).
func (o *Orchestrator) RespondToPermission(workerID coordination.WorkerID, optionID string) error {
	if o.permissions == nil {
		return conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("no permission registry configured"))
	}
	if !o.permissions.Respond(workerID, optionID) {
		return conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("worker %q has no pending permission request", workerID))
	}
	return nil
}

// ListSessions implements list_sessions (§6).
func (o *Orchestrator) ListSessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Session, 0, len(o.sessions))
	for _, h := range o.sessions {
		out = append(out, h.session)
	}
	return out
}

// GetSession implements get_session (§6).
func (o *Orchestrator) GetSession(sessionID string) (*Session, error) {
	handle, err := o.handle(sessionID)
	if err != nil {
		return nil, err
	}
	return handle.session, nil
}

// SaveSession implements save_session (§6): writes the current in-memory
// session envelope to the persistence provider.
func (o *Orchestrator) SaveSession(ctx context.Context, sessionID string) (*persistence.PersistedSession, error) {
	if o.persisted == nil {
		return nil, conductorerr.WithKind(conductorerr.NotSupported, fmt.Errorf("no persistence provider configured"))
	}
	handle, err := o.handle(sessionID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	sess := handle.session
	w := sess.firstWorker()
	o.mu.Unlock()

	var agentID, acpSessionID string
	if w != nil {
		agentID = w.AgentID
		o.mu.Lock()
		if sup, ok := handle.supervisors[w.ID]; ok {
			acpSessionID = sup.AcpSessionID()
		}
		o.mu.Unlock()
	}

	return o.persisted.Save(ctx, &persistence.PersistedSession{
		SessionID:     sess.ID,
		AgentID:       agentID,
		AcpSessionID:  acpSessionID,
		Cwd:           sess.Cwd,
		InitialPrompt: sess.Prompt,
		Status:        string(sess.Status),
	})
}

// ListPersistedSessions implements list_persisted_sessions (§6).
func (o *Orchestrator) ListPersistedSessions(ctx context.Context) ([]*persistence.PersistedSession, error) {
	if o.persisted == nil {
		return nil, conductorerr.WithKind(conductorerr.NotSupported, fmt.Errorf("no persistence provider configured"))
	}
	return o.persisted.List(ctx)
}

// GetPersistedSession implements get_persisted_session (§6).
func (o *Orchestrator) GetPersistedSession(ctx context.Context, id string) (*persistence.PersistedSession, error) {
	if o.persisted == nil {
		return nil, conductorerr.WithKind(conductorerr.NotSupported, fmt.Errorf("no persistence provider configured"))
	}
	return o.persisted.Get(ctx, id)
}

// DeletePersistedSession implements delete_persisted_session (§6).
func (o *Orchestrator) DeletePersistedSession(ctx context.Context, id string) error {
	if o.persisted == nil {
		return conductorerr.WithKind(conductorerr.NotSupported, fmt.Errorf("no persistence provider configured"))
	}
	return o.persisted.Delete(ctx, id)
}

// TaskStore returns the Task Store backing sessionID (§4.2), for callers
// outside the orchestrator such as the MCP tool surface.
func (o *Orchestrator) TaskStore(sessionID string) (*coordination.TaskStore, error) {
	handle, err := o.handle(sessionID)
	if err != nil {
		return nil, err
	}
	return handle.tasks, nil
}

// Inbox returns the Inbox backing sessionID (§4.3).
func (o *Orchestrator) Inbox(sessionID string) (*coordination.Inbox, error) {
	handle, err := o.handle(sessionID)
	if err != nil {
		return nil, err
	}
	return handle.inbox, nil
}

func (o *Orchestrator) handle(sessionID string) (*sessionHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.sessions[sessionID]
	if !ok {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("session %q not found", sessionID))
	}
	return h, nil
}

func (o *Orchestrator) leaderSupervisor(sessionID string) (*worker.Supervisor, *Worker, error) {
	handle, err := o.handle(sessionID)
	if err != nil {
		return nil, nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	w := handle.session.firstWorker()
	if w == nil {
		return nil, nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("session %q has no worker", sessionID))
	}
	sup, ok := handle.supervisors[w.ID]
	if !ok {
		return nil, nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("worker %q has no active supervisor", w.ID))
	}
	return sup, w, nil
}

func toACPSessionID(id string) acpsdk.SessionId {
	return acpsdk.SessionId(id)
}

func (o *Orchestrator) setWorkerStatus(sessionID string, workerID coordination.WorkerID, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.sessions[sessionID]
	if !ok {
		return
	}
	w := h.session.workerByID(workerID)
	if w == nil {
		return
	}
	w.UpdatedAt = time.Now()
	if err != nil {
		w.Status = WorkerFailed
		w.Error = err.Error()
		return
	}
	w.Status = WorkerCompleted
	w.Error = ""
}
