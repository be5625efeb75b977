// Package swarm intercepts "swarm" sub-commands agents try to run through
// their shell/terminal tools and routes them into the coordination substrate
// (Task Store, Inbox) instead of letting them reach a real shell (§4.4).
package swarm

import (
	"strings"

	"github.com/ralphswarm/conductor/internal/coordination"
)

// Category is the top-level namespace of a swarm command.
type Category string

const (
	CategoryTask  Category = "task"
	CategoryInbox Category = "inbox"
	CategoryTeam  Category = "team"
)

// Command is a parsed "swarm <category> <action> [args...]" invocation.
type Command struct {
	Category Category
	Action   string
	Args     []string
}

// Result is the structured outcome of executing a Command.
type Result struct {
	Success bool        `json:"success"`
	Output  string      `json:"output"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(output string, data interface{}) Result {
	return Result{Success: true, Output: output, Data: data}
}

func fail(output string) Result {
	return Result{Success: false, Output: output}
}

// IsSwarmCommand reports whether a raw command string should be intercepted
// before it reaches a real shell.
func IsSwarmCommand(command string) bool {
	return strings.HasPrefix(strings.TrimSpace(command), "swarm ")
}

// Parse parses a raw command string into a Command. It returns false if the
// string is not a well-formed swarm invocation.
func Parse(command string) (Command, bool) {
	trimmed := strings.TrimSpace(command)
	if !strings.HasPrefix(trimmed, "swarm ") {
		return Command{}, false
	}

	tokens := tokenize(trimmed[len("swarm "):])
	if len(tokens) == 0 {
		return Command{}, false
	}

	var category Category
	switch strings.ToLower(tokens[0]) {
	case "task":
		category = CategoryTask
	case "inbox":
		category = CategoryInbox
	case "team":
		category = CategoryTeam
	default:
		return Command{}, false
	}

	if len(tokens) < 2 || tokens[1] == "" {
		return Command{}, false
	}
	action := tokens[1]

	var args []string
	if len(tokens) > 2 {
		args = tokens[2:]
	}

	return Command{Category: category, Action: action, Args: args}, true
}

// tokenize splits input into shell-like tokens, respecting single and
// double quoted strings. It does not support backslash escapes.
func tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte('"')

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case (c == '"' || c == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = c
		case c == quoteChar && inQuotes:
			inQuotes = false
		case c == ' ' && !inQuotes:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// Interpreter dispatches parsed Commands against a session's coordination
// substrate on behalf of a particular worker.
type Interpreter struct {
	Tasks *coordination.TaskStore
	Inbox *coordination.Inbox
}

// NewInterpreter builds an Interpreter bound to one session's Task Store and Inbox.
func NewInterpreter(tasks *coordination.TaskStore, inbox *coordination.Inbox) *Interpreter {
	return &Interpreter{Tasks: tasks, Inbox: inbox}
}

// Execute runs cmd as worker and returns the structured result.
func (in *Interpreter) Execute(cmd Command, worker coordination.WorkerID) Result {
	switch cmd.Category {
	case CategoryTask:
		return in.executeTask(cmd, worker)
	case CategoryInbox:
		return in.executeInbox(cmd, worker)
	case CategoryTeam:
		return fail("team commands not yet implemented")
	default:
		return fail("unknown swarm category")
	}
}

// ExecuteString parses and runs a raw "swarm ..." string in one step.
// It returns false if command is not a swarm invocation at all.
func (in *Interpreter) ExecuteString(command string, worker coordination.WorkerID) (Result, bool) {
	cmd, parsed := Parse(command)
	if !parsed {
		return Result{}, false
	}
	return in.Execute(cmd, worker), true
}
