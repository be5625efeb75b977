package prd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ralphswarm/conductor/internal/acp"
	"github.com/ralphswarm/conductor/internal/agent/registry"
	"github.com/ralphswarm/conductor/internal/common/stringutil"
	"github.com/ralphswarm/conductor/internal/conductorerr"
	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/ralphswarm/conductor/internal/events"
	"github.com/ralphswarm/conductor/internal/worker"
)

// pollInterval is how often the Ralph loop checks for newly-ready stories
// and idle workers.
const pollInterval = 500 * time.Millisecond

// maxGuardrailLen bounds how much of an agent or criterion error makes it
// into the next iteration's prompt, so one runaway stack trace doesn't
// balloon every prompt after it.
const maxGuardrailLen = 500

// defaultAgentID is the agent kind PRD workers launch when a story doesn't
// name one (the original hardcodes a single Claude fallback; this does the
// same via the registry's "claude" descriptor).
const defaultAgentID = "claude"

// modelRegistryIDs maps a cost-tier ModelID onto the concrete model id the
// "claude" agent descriptor understands.
var modelRegistryIDs = map[ModelID]string{
	ModelOpus:   "claude-opus-4-5-20251101",
	ModelSonnet: "claude-sonnet-4-5-20250929",
	ModelHaiku:  "claude-haiku-4-5-20251001",
}

// Manager runs PRD sessions (§4.7): it validates documents, drives the
// Ralph main loop per session, and exposes the session/worker/story state
// the PRD command surface (§6) reports on.
//
// Manager keeps its own cancellation-channel map, separate from the
// Orchestrator's, mirroring the original's independent cancel_channels
// field: PRD workers bypass the coordination substrate entirely and are
// driven directly by Manager.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cancels  map[coordination.WorkerID]chan struct{}
	running  map[string]bool // sessionID -> a Ralph loop goroutine is active
	sems     map[string]*semaphore.Weighted // sessionID -> worker-pool concurrency bound

	registry    *registry.Registry
	sink        acp.EventSink
	permissions *acp.PermissionRegistry
	workingDir  string
	defaults    Defaults
}

// Defaults holds the operator-configured fallbacks applied to a PRD that
// doesn't specify its own constraints (config's prd.* section).
type Defaults struct {
	MaxIterationsPerStory uint32
	DefaultModel          ModelID
	WorkerPoolCap         uint32
}

// NewManager builds a Manager. workingDir, when non-empty, is used as the
// default cwd for every PRD worker that doesn't get one from its session.
func NewManager(reg *registry.Registry, sink acp.EventSink, permissions *acp.PermissionRegistry, workingDir string, defaults Defaults) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		cancels:     make(map[coordination.WorkerID]chan struct{}),
		running:     make(map[string]bool),
		sems:        make(map[string]*semaphore.Weighted),
		registry:    reg,
		sink:        sink,
		permissions: permissions,
		workingDir:  workingDir,
		defaults:    defaults,
	}
}

// applyDefaults fills in any constraint p's document left unset from m's
// configured fallbacks, capping MaxWorkers at WorkerPoolCap when one is
// configured.
func (m *Manager) applyDefaults(p *PRD) {
	if p.Constraints.MaxWorkers == 0 {
		p.Constraints.MaxWorkers = 3
	}
	if m.defaults.WorkerPoolCap > 0 && p.Constraints.MaxWorkers > m.defaults.WorkerPoolCap {
		p.Constraints.MaxWorkers = m.defaults.WorkerPoolCap
	}
	if p.Constraints.MaxIterationsPerStory == 0 {
		if m.defaults.MaxIterationsPerStory > 0 {
			p.Constraints.MaxIterationsPerStory = m.defaults.MaxIterationsPerStory
		} else {
			p.Constraints.MaxIterationsPerStory = 15
		}
	}
	if p.Constraints.Models == nil {
		model := m.defaults.DefaultModel
		if model == "" {
			model = ModelSonnet
		}
		p.Constraints.Models = &ModelConstraints{Master: ModelOpus, Default: model}
	}
}

// Register implements worker.CancelRegistry.
func (m *Manager) Register(w coordination.WorkerID) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.cancels[w] = ch
	return ch
}

// Unregister implements worker.CancelRegistry.
func (m *Manager) Unregister(w coordination.WorkerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, w)
}

func (m *Manager) fireCancel(w coordination.WorkerID) {
	m.mu.Lock()
	ch, ok := m.cancels[w]
	m.mu.Unlock()
	if ok {
		close(ch)
	}
}

// cancelKey composes the per-(session,pool-worker) id used both as the
// Supervisor's coordination.WorkerID and as the cancel-map key, keeping two
// concurrent sessions reusing the same pool-worker name ("worker-0") from
// colliding.
func cancelKey(sessionID, poolWorkerID string) coordination.WorkerID {
	return coordination.WorkerID(sessionID + ":" + poolWorkerID)
}

// Validate implements validate_prd (§6).
func (m *Manager) Validate(p PRD) ValidationResult {
	m.applyDefaults(&p)
	return ValidatePRD(p)
}

// CreateSession implements create_prd_session (§6): validates p, builds its
// worker pool and story-progress map, and backfills any story that wasn't
// given an explicit model with the validator's assignment.
func (m *Manager) CreateSession(p PRD) (*Session, error) {
	m.applyDefaults(&p)
	result := ValidatePRD(p)
	if !result.Valid {
		return nil, conductorerr.WithKind(conductorerr.InvalidArgument, fmt.Errorf("invalid PRD: %s", strings.Join(result.Errors, "; ")))
	}

	for i := range p.Stories {
		if p.Stories[i].Model == "" {
			p.Stories[i].Model = result.ModelAssignments[p.Stories[i].ID]
		}
	}

	sess := newSession(uuid.New().String(), p)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.sems[sess.ID] = semaphore.NewWeighted(int64(p.Constraints.MaxWorkers))
	m.mu.Unlock()

	return sess, nil
}

// GetSession returns the session for id.
func (m *Manager) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("prd session %q not found", id))
	}
	return sess, nil
}

// ListSessions returns a summary of every known session.
func (m *Manager) ListSessions() []SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, summarize(s))
	}
	return out
}

// StartSession implements (the entry point behind) create_prd_session's
// subsequent run: flips the session to running and launches its Ralph
// loop, if one isn't already in flight.
func (m *Manager) StartSession(ctx context.Context, id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.running[id] {
		m.mu.Unlock()
		return nil
	}
	now := time.Now()
	sess.Status = SessionRunning
	sess.StartedAt = &now
	m.running[id] = true
	m.mu.Unlock()

	go m.runLoop(id)
	return nil
}

// PauseSession implements pause_prd_session (§6): the main loop notices
// the status flip and exits after its current poll.
func (m *Manager) PauseSession(id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.Status != SessionRunning {
		return conductorerr.WithKind(conductorerr.InvalidArgument, fmt.Errorf("prd session %q is not running", id))
	}
	sess.Status = SessionPaused
	return nil
}

// ResumeSession implements resume_prd_session (§6): re-enters the Ralph
// loop from wherever progress left off.
func (m *Manager) ResumeSession(ctx context.Context, id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if sess.Status != SessionPaused {
		m.mu.Unlock()
		return conductorerr.WithKind(conductorerr.InvalidArgument, fmt.Errorf("prd session %q is not paused", id))
	}
	sess.Status = SessionRunning
	alreadyRunning := m.running[id]
	m.running[id] = true
	m.mu.Unlock()

	if !alreadyRunning {
		go m.runLoop(id)
	}
	return nil
}

// CancelSession implements cancel_prd_session (§6): fires every registered
// cancel channel for the session, marks every still-working worker
// errored, and fails the session.
func (m *Manager) CancelSession(id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	var keys []coordination.WorkerID
	prefix := id + ":"
	for k := range m.cancels {
		if strings.HasPrefix(string(k), prefix) {
			keys = append(keys, k)
		}
	}
	sess.Status = SessionFailed
	for _, w := range sess.Workers {
		if w.Status == WorkerWorking {
			w.fail("Session cancelled")
		}
	}
	m.mu.Unlock()

	for _, k := range keys {
		m.fireCancel(k)
	}
	return nil
}

// RetryStory implements retry_prd_story (§6): resets a failed story's
// progress to pending so the main loop picks it up again.
func (m *Manager) RetryStory(id, storyID string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	progress, ok := sess.StoryProgress[storyID]
	if !ok {
		return conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("story %q not found", storyID))
	}
	if progress.Status != StoryFailed {
		return conductorerr.WithKind(conductorerr.InvalidArgument, fmt.Errorf("story %q is not failed", storyID))
	}

	progress.Status = StoryPending
	progress.Iteration = 0
	progress.Error = ""
	progress.CompletedAt = nil
	for i := range progress.CriteriaStatus {
		progress.CriteriaStatus[i] = CriterionStatus{}
	}

	if sess.Status == SessionFailed {
		sess.Status = SessionRunning
	}
	return nil
}

// GetStoryProgress implements get_story_progress (§6).
func (m *Manager) GetStoryProgress(id, storyID string) (*StoryProgress, error) {
	sess, err := m.GetSession(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	progress, ok := sess.StoryProgress[storyID]
	if !ok {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("story %q not found", storyID))
	}
	return progress, nil
}

// GetWorkers implements get_prd_workers (§6).
func (m *Manager) GetWorkers(id string) ([]*RalphWorker, error) {
	sess, err := m.GetSession(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return sess.Workers, nil
}

// GetCostBreakdown implements get_prd_cost_breakdown (§6).
func (m *Manager) GetCostBreakdown(id string) ([]CostBreakdown, error) {
	sess, err := m.GetSession(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return GetCostBreakdown(sess), nil
}

// runLoop is the Ralph main loop (§4.7, §5 "one executor per worker"): it
// greedily assigns ready stories to idle workers until the session is
// paused, completed, or failed, polling every pollInterval.
func (m *Manager) runLoop(sessionID string) {
	defer func() {
		m.mu.Lock()
		m.running[sessionID] = false
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		sess, ok := m.sessions[sessionID]
		if !ok || sess.Status != SessionRunning {
			m.mu.Unlock()
			return
		}

		sem := m.sems[sessionID]

		for _, story := range sess.readyStories() {
			idle := sess.idleWorkers()
			if len(idle) == 0 {
				break
			}
			if sem != nil && !sem.TryAcquire(1) {
				break
			}
			w := idle[0]
			progress := sess.StoryProgress[story.ID]
			progress.start(w.ID)
			w.startStory(story.ID)

			go m.runWorkerLoop(sessionID, w.ID, story.ID)
		}

		if sess.allStoriesCompleted() {
			now := time.Now()
			sess.Status = SessionCompleted
			sess.CompletedAt = &now
			m.mu.Unlock()
			return
		}
		if sess.anyStoryFailed() {
			now := time.Now()
			sess.Status = SessionFailed
			sess.CompletedAt = &now
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		time.Sleep(pollInterval)
	}
}

// runWorkerLoop drives one pool worker through one story's iteration loop
// (§4.7): spawn, build the prompt, send it, verify acceptance criteria on
// success, and append a guardrail on either an agent error or a failing
// criterion, until all criteria pass or the iteration budget is exhausted.
func (m *Manager) runWorkerLoop(sessionID, poolWorkerID, storyID string) {
	defer func() {
		m.mu.Lock()
		sem := m.sems[sessionID]
		m.mu.Unlock()
		if sem != nil {
			sem.Release(1)
		}
	}()

	sess, err := m.GetSession(sessionID)
	if err != nil {
		return
	}

	m.mu.Lock()
	var story *Story
	for i := range sess.PRD.Stories {
		if sess.PRD.Stories[i].ID == storyID {
			story = &sess.PRD.Stories[i]
			break
		}
	}
	progress := sess.StoryProgress[storyID]
	var ralphWorker *RalphWorker
	for _, w := range sess.Workers {
		if w.ID == poolWorkerID {
			ralphWorker = w
			break
		}
	}
	maxIterations := progress.MaxIterations
	cwd := m.workingDir
	m.mu.Unlock()

	if story == nil || progress == nil || ralphWorker == nil {
		return
	}

	model := story.Model
	if model == "" {
		model = ModelSonnet
	}
	desc, ok := m.registry.Get(defaultAgentID)
	if !ok {
		m.mu.Lock()
		progress.fail(fmt.Sprintf("agent %q not available", defaultAgentID))
		ralphWorker.fail(progress.Error)
		m.mu.Unlock()
		return
	}

	workerID := cancelKey(sessionID, poolWorkerID)
	sup := worker.NewSupervisor(worker.Config{
		Worker:      workerID,
		SessionID:   sessionID,
		Agent:       desc,
		ModelID:     modelRegistryIDs[model],
		Cwd:         cwd,
		Sink:        m.sink,
		Permissions: m.permissions,
		Cancels:     m,
	})

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(context.Background(), worker.StartupReconnect) }()

	var guardrails []string
	for iteration := uint32(1); iteration <= maxIterations; iteration++ {
		m.mu.Lock()
		progress.Iteration = iteration
		ralphWorker.nextIteration()
		m.mu.Unlock()
		m.emitStatus(sessionID, string(poolWorkerID), storyID, events.StatusRunning, "")

		prompt := buildStoryPrompt(*story, iteration, guardrails)
		reply := make(chan error, 1)
		sup.Send(worker.Prompt{Text: prompt, Reply: reply})

		var promptErr error
		select {
		case promptErr = <-reply:
		case promptErr = <-runDone:
		}

		if promptErr != nil {
			if conductorerr.KindOf(promptErr) == conductorerr.Cancelled {
				return
			}
			guardrails = append(guardrails, fmt.Sprintf("Agent error: %s", stringutil.TruncateStringWithEllipsis(promptErr.Error(), maxGuardrailLen)))
			continue
		}

		// A cancelled prompt replies nil (§4.6), not an error — the session's
		// status (flipped before the cancel fires, see CancelSession) is what
		// actually tells us the worker was torn down rather than genuinely
		// done prompting.
		if current, cerr := m.GetSession(sessionID); cerr != nil || current.Status != SessionRunning {
			return
		}

		statuses := VerifyAllCriteria(context.Background(), story.AcceptanceCriteria, cwd)
		m.mu.Lock()
		progress.CriteriaStatus = statuses
		m.mu.Unlock()

		if AllCriteriaPass(statuses) {
			m.mu.Lock()
			progress.complete()
			ralphWorker.reset()
			m.mu.Unlock()
			m.emitStatus(sessionID, string(poolWorkerID), storyID, events.StatusCompleted, "")
			sup.Send(worker.Stop{})
			return
		}

		for i, st := range statuses {
			if !st.Passed {
				desc := "criterion"
				if i < len(story.AcceptanceCriteria) && story.AcceptanceCriteria[i].Description != "" {
					desc = story.AcceptanceCriteria[i].Description
				}
				guardrails = append(guardrails, fmt.Sprintf("Criterion %q: %s", desc, stringutil.TruncateStringWithEllipsis(st.Error, maxGuardrailLen)))
			}
		}

		current, cerr := m.GetSession(sessionID)
		if cerr != nil || current.Status != SessionRunning {
			sup.Send(worker.Stop{})
			return
		}
	}

	m.mu.Lock()
	progress.fail(fmt.Sprintf("Max iterations (%d) reached", maxIterations))
	ralphWorker.fail(progress.Error)
	m.mu.Unlock()
	m.emitStatus(sessionID, string(poolWorkerID), storyID, events.StatusFailed, progress.Error)
	sup.Send(worker.Stop{})
}

func (m *Manager) emitStatus(sessionID, workerID, storyID, status, errMsg string) {
	if m.sink == nil {
		return
	}
	payload := map[string]interface{}{
		"session_id": sessionID,
		"worker_id":  workerID,
		"story_id":   storyID,
		"status":     status,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	m.sink.Emit(events.WorkerStatusChange, payload)
}

// buildStoryPrompt renders a story and any accumulated guardrails into the
// prompt text for one iteration.
func buildStoryPrompt(s Story, iteration uint32, guardrails []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Story: %s\n\n%s\n\n", s.Title, s.Description)

	if len(s.Hints) > 0 {
		b.WriteString("### Hints\n")
		for _, h := range s.Hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Acceptance Criteria\n")
	for i, c := range s.AcceptanceCriteria {
		desc := c.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, desc)
	}
	b.WriteString("\n")

	if len(guardrails) > 0 {
		b.WriteString("### Previous Iteration Feedback\n")
		for _, g := range guardrails {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Iteration %d: Please implement the story and ensure all acceptance criteria pass.**", iteration)
	return b.String()
}
