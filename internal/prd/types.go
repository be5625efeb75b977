// Package prd implements the PRD driver and Acceptance Verifier (§4.7,
// §4.8): given a validated Product Requirements Document, it runs a fixed
// pool of workers through a story-by-story, iteration-by-iteration loop
// until every story's acceptance criteria pass or its iteration budget is
// exhausted.
package prd

import (
	"strconv"
	"time"
)

// CriterionType names one of the four acceptance-criterion variants.
type CriterionType string

const (
	CriterionTest       CriterionType = "test"
	CriterionFileExists CriterionType = "file_exists"
	CriterionPattern    CriterionType = "pattern"
	CriterionCustom     CriterionType = "custom"
)

// AcceptanceCriterion is one check a story must satisfy. Exactly which
// fields are required depends on Type (§4.8).
type AcceptanceCriterion struct {
	Type        CriterionType `json:"type" yaml:"type"`
	Command     string        `json:"command,omitempty" yaml:"command,omitempty"`
	Path        string        `json:"path,omitempty" yaml:"path,omitempty"`
	File        string        `json:"file,omitempty" yaml:"file,omitempty"`
	Pattern     string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Script      string        `json:"script,omitempty" yaml:"script,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// CriterionStatus is the result of the most recent verification of one
// criterion.
type CriterionStatus struct {
	Passed      bool       `json:"passed"`
	Error       string     `json:"error,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

func passedStatus() CriterionStatus {
	now := time.Now()
	return CriterionStatus{Passed: true, LastChecked: &now}
}

func failedStatus(err string) CriterionStatus {
	now := time.Now()
	return CriterionStatus{Passed: false, Error: err, LastChecked: &now}
}

// StoryStatus is a story's place in its own lifecycle.
type StoryStatus string

const (
	StoryPending    StoryStatus = "pending"
	StoryInProgress StoryStatus = "in_progress"
	StoryCompleted  StoryStatus = "completed"
	StoryFailed     StoryStatus = "failed"
	StoryBlocked    StoryStatus = "blocked"
)

// ModelID is one of the three cost-tiered models a story can be assigned.
type ModelID string

const (
	ModelOpus   ModelID = "opus"
	ModelSonnet ModelID = "sonnet"
	ModelHaiku  ModelID = "haiku"
)

// modelRates is the static per-million-token rate table (§ SUPPLEMENTED
// FEATURES "a small static per-model rate table").
var modelRates = map[ModelID]struct{ input, output float64 }{
	ModelOpus:   {input: 15.0, output: 75.0},
	ModelSonnet: {input: 3.0, output: 15.0},
	ModelHaiku:  {input: 0.25, output: 1.25},
}

// CalculateCost returns the dollar cost of inputTokens/outputTokens at m's rate.
func (m ModelID) CalculateCost(inputTokens, outputTokens uint64) float64 {
	rate, ok := modelRates[m]
	if !ok {
		rate = modelRates[ModelSonnet]
	}
	inputCost := (float64(inputTokens) / 1_000_000) * rate.input
	outputCost := (float64(outputTokens) / 1_000_000) * rate.output
	return inputCost + outputCost
}

// Complexity is a story's hinted difficulty, used to pick a default model
// when no explicit model is assigned.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// RecommendedModel maps a complexity hint to its default model.
func (c Complexity) RecommendedModel() ModelID {
	switch c {
	case ComplexityHigh:
		return ModelOpus
	case ComplexityMedium:
		return ModelSonnet
	default:
		return ModelHaiku
	}
}

// Story is one unit of work in a PRD: a DAG node with acceptance criteria.
type Story struct {
	ID                 string                `json:"id" yaml:"id"`
	Title              string                `json:"title" yaml:"title"`
	Description        string                `json:"description" yaml:"description"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria" yaml:"acceptance_criteria"`
	Dependencies       []string              `json:"dependencies" yaml:"dependencies"`
	Hints              []string              `json:"hints,omitempty" yaml:"hints,omitempty"`
	Complexity         Complexity            `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Model              ModelID               `json:"model,omitempty" yaml:"model,omitempty"`
}

// StoryProgress tracks one story's execution within a session.
type StoryProgress struct {
	Status         StoryStatus       `json:"status"`
	WorkerID       string            `json:"worker_id,omitempty"`
	Iteration      uint32            `json:"iteration"`
	MaxIterations  uint32            `json:"max_iterations"`
	CriteriaStatus []CriterionStatus `json:"criteria_status"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Error          string            `json:"error,omitempty"`
}

func newStoryProgress(maxIterations uint32, criteriaCount int) *StoryProgress {
	return &StoryProgress{
		Status:         StoryPending,
		MaxIterations:  maxIterations,
		CriteriaStatus: make([]CriterionStatus, criteriaCount),
	}
}

func (p *StoryProgress) start(workerID string) {
	p.Status = StoryInProgress
	p.WorkerID = workerID
	now := time.Now()
	p.StartedAt = &now
}

func (p *StoryProgress) complete() {
	p.Status = StoryCompleted
	now := time.Now()
	p.CompletedAt = &now
}

func (p *StoryProgress) fail(err string) {
	p.Status = StoryFailed
	p.Error = err
	now := time.Now()
	p.CompletedAt = &now
}

func (p *StoryProgress) allCriteriaPassed() bool {
	for _, c := range p.CriteriaStatus {
		if !c.Passed {
			return false
		}
	}
	return true
}

// ModelConstraints names the master and default models for a PRD.
type ModelConstraints struct {
	Master  ModelID `json:"master,omitempty" yaml:"master,omitempty"`
	Default ModelID `json:"default,omitempty" yaml:"default,omitempty"`
}

// Constraints bounds a PRD's execution.
type Constraints struct {
	MaxWorkers              uint32            `json:"max_workers" yaml:"max_workers"`
	MaxIterationsPerStory   uint32            `json:"max_iterations_per_story" yaml:"max_iterations_per_story"`
	TotalTimeoutMinutes     uint32            `json:"total_timeout_minutes,omitempty" yaml:"total_timeout_minutes,omitempty"`
	Models                  *ModelConstraints `json:"models,omitempty" yaml:"models,omitempty"`
}

// DefaultConstraints mirrors the original's Default impl.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxWorkers:            3,
		MaxIterationsPerStory: 15,
		TotalTimeoutMinutes:   120,
		Models:                &ModelConstraints{Master: ModelOpus, Default: ModelSonnet},
	}
}

func (c Constraints) defaultModel() ModelID {
	if c.Models != nil && c.Models.Default != "" {
		return c.Models.Default
	}
	return ModelSonnet
}

// PRD is a Product Requirements Document: a title, its stories, and the
// constraints that bound how it is executed.
type PRD struct {
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Stories     []Story     `json:"stories" yaml:"stories"`
	Constraints Constraints `json:"constraints" yaml:"constraints"`
}

// RalphWorkerStatus is a pool worker's current activity.
type RalphWorkerStatus string

const (
	WorkerIdle      RalphWorkerStatus = "idle"
	WorkerWorking   RalphWorkerStatus = "working"
	WorkerCompleted RalphWorkerStatus = "completed"
	WorkerError     RalphWorkerStatus = "error"
)

// RalphWorker is one member of a PrdSession's fixed worker pool.
type RalphWorker struct {
	ID             string            `json:"id"`
	Model          ModelID           `json:"model"`
	Status         RalphWorkerStatus `json:"status"`
	CurrentStoryID string            `json:"current_story_id,omitempty"`
	Iteration      uint32            `json:"iteration"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	LastActivityAt *time.Time        `json:"last_activity_at,omitempty"`
	Error          string            `json:"error,omitempty"`
}

func newRalphWorker(id string, model ModelID) *RalphWorker {
	return &RalphWorker{ID: id, Model: model, Status: WorkerIdle}
}

func (w *RalphWorker) startStory(storyID string) {
	w.Status = WorkerWorking
	w.CurrentStoryID = storyID
	w.Iteration = 1
	now := time.Now()
	w.StartedAt = &now
	w.LastActivityAt = &now
}

func (w *RalphWorker) nextIteration() {
	w.Iteration++
	now := time.Now()
	w.LastActivityAt = &now
}

func (w *RalphWorker) fail(err string) {
	w.Status = WorkerError
	w.Error = err
	now := time.Now()
	w.LastActivityAt = &now
}

func (w *RalphWorker) reset() {
	w.Status = WorkerIdle
	w.CurrentStoryID = ""
	w.Iteration = 0
	w.StartedAt = nil
	w.Error = ""
}

// SessionStatus is a PrdSession's place in its own lifecycle.
type SessionStatus string

const (
	SessionIdle       SessionStatus = "idle"
	SessionValidating SessionStatus = "validating"
	SessionRunning    SessionStatus = "running"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// TokenUsage accumulates input/output token counts across a session.
type TokenUsage struct {
	Input  uint64 `json:"input"`
	Output uint64 `json:"output"`
}

// Session is one PRD execution: its document, worker pool, and per-story
// progress.
type Session struct {
	ID            string                    `json:"id"`
	PRD           PRD                       `json:"prd"`
	Status        SessionStatus             `json:"status"`
	Workers       []*RalphWorker            `json:"workers"`
	StoryProgress map[string]*StoryProgress `json:"story_progress"`
	TotalCost     float64                   `json:"total_cost"`
	TokensUsed    TokenUsage                `json:"tokens_used"`
	StartedAt     *time.Time                `json:"started_at,omitempty"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`
}

func newSession(id string, p PRD) *Session {
	progress := make(map[string]*StoryProgress, len(p.Stories))
	for _, s := range p.Stories {
		progress[s.ID] = newStoryProgress(p.Constraints.MaxIterationsPerStory, len(s.AcceptanceCriteria))
	}

	defaultModel := p.Constraints.defaultModel()
	workers := make([]*RalphWorker, p.Constraints.MaxWorkers)
	for i := range workers {
		workers[i] = newRalphWorker(workerPoolID(i), defaultModel)
	}

	return &Session{
		ID:            id,
		PRD:           p,
		Status:        SessionIdle,
		Workers:       workers,
		StoryProgress: progress,
	}
}

func workerPoolID(i int) string {
	return "worker-" + strconv.Itoa(i)
}

// readyStories returns every story whose status is pending and whose
// dependencies are all completed.
func (s *Session) readyStories() []*Story {
	var out []*Story
	for i := range s.PRD.Stories {
		story := &s.PRD.Stories[i]
		progress := s.StoryProgress[story.ID]
		if progress == nil || progress.Status != StoryPending {
			continue
		}
		ready := true
		for _, dep := range story.Dependencies {
			depProgress := s.StoryProgress[dep]
			if depProgress == nil || depProgress.Status != StoryCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, story)
		}
	}
	return out
}

func (s *Session) idleWorkers() []*RalphWorker {
	var out []*RalphWorker
	for _, w := range s.Workers {
		if w.Status == WorkerIdle {
			out = append(out, w)
		}
	}
	return out
}

func (s *Session) allStoriesCompleted() bool {
	for _, p := range s.StoryProgress {
		if p.Status != StoryCompleted {
			return false
		}
	}
	return true
}

func (s *Session) anyStoryFailed() bool {
	for _, p := range s.StoryProgress {
		if p.Status == StoryFailed {
			return true
		}
	}
	return false
}

func (s *Session) addCost(model ModelID, inputTokens, outputTokens uint64) {
	s.TokensUsed.Input += inputTokens
	s.TokensUsed.Output += outputTokens
	s.TotalCost += model.CalculateCost(inputTokens, outputTokens)
}

// ValidationResult is the outcome of ValidatePRD.
type ValidationResult struct {
	Valid            bool               `json:"valid"`
	Errors           []string           `json:"errors"`
	Warnings         []string           `json:"warnings"`
	EstimatedCost    float64            `json:"estimated_cost"`
	ModelAssignments map[string]ModelID `json:"model_assignments"`
	DependencyOrder  []string           `json:"dependency_order"`
}

func invalidResult(errs []string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

func validResult(cost float64, assignments map[string]ModelID, order []string) ValidationResult {
	return ValidationResult{
		Valid:            true,
		EstimatedCost:    cost,
		ModelAssignments: assignments,
		DependencyOrder:  order,
	}
}

// CostBreakdown is one story's share of a session's accumulated cost.
type CostBreakdown struct {
	StoryID    string     `json:"story_id"`
	Model      ModelID    `json:"model"`
	Iterations uint32     `json:"iterations"`
	Tokens     TokenUsage `json:"tokens"`
	Cost       float64    `json:"cost"`
}

// SessionSummary is the listing view of a Session.
type SessionSummary struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Status           SessionStatus `json:"status"`
	StoriesTotal     int           `json:"stories_total"`
	StoriesCompleted int           `json:"stories_completed"`
	ActiveWorkers    int           `json:"active_workers"`
	TotalCost        float64       `json:"total_cost"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
}

func summarize(s *Session) SessionSummary {
	completed := 0
	for _, p := range s.StoryProgress {
		if p.Status == StoryCompleted {
			completed++
		}
	}
	active := 0
	for _, w := range s.Workers {
		if w.Status == WorkerWorking {
			active++
		}
	}
	return SessionSummary{
		ID:               s.ID,
		Title:            s.PRD.Title,
		Status:           s.Status,
		StoriesTotal:     len(s.PRD.Stories),
		StoriesCompleted: completed,
		ActiveWorkers:    active,
		TotalCost:        s.TotalCost,
		StartedAt:        s.StartedAt,
	}
}
