package swarm

import (
	"testing"

	"github.com/ralphswarm/conductor/internal/coordination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSwarmCommand(t *testing.T) {
	assert.True(t, IsSwarmCommand("swarm task list"))
	assert.True(t, IsSwarmCommand("  swarm inbox read  "))
	assert.False(t, IsSwarmCommand("ls -la"))
	assert.False(t, IsSwarmCommand("echo swarm"))
}

func TestParse(t *testing.T) {
	cmd, ok := Parse("swarm task list")
	require.True(t, ok)
	assert.Equal(t, CategoryTask, cmd.Category)
	assert.Equal(t, "list", cmd.Action)
	assert.Empty(t, cmd.Args)

	cmd, ok = Parse(`swarm task create "My Task" "Description here"`)
	require.True(t, ok)
	assert.Equal(t, CategoryTask, cmd.Category)
	assert.Equal(t, "create", cmd.Action)
	assert.Equal(t, []string{"My Task", "Description here"}, cmd.Args)

	cmd, ok = Parse(`swarm inbox write worker-2 "Hello there"`)
	require.True(t, ok)
	assert.Equal(t, CategoryInbox, cmd.Category)
	assert.Equal(t, "write", cmd.Action)
	assert.Equal(t, []string{"worker-2", "Hello there"}, cmd.Args)

	_, ok = Parse("ls -la")
	assert.False(t, ok)

	_, ok = Parse("echo swarm")
	assert.False(t, ok)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"task", "list"}, tokenize("task list"))
	assert.Equal(t, []string{"task", "create", "Hello World", "Description"},
		tokenize(`task create "Hello World" "Description"`))
	assert.Equal(t, []string{"inbox", "write", "worker-1", "Single quotes"},
		tokenize(`inbox write worker-1 'Single quotes'`))
}

func TestInterpreter_TaskLifecycle(t *testing.T) {
	tasks := coordination.NewTaskStore()
	inbox := coordination.NewInbox()
	in := NewInterpreter(tasks, inbox)
	worker := coordination.WorkerID("worker-1")

	res := in.Execute(Command{Category: CategoryTask, Action: "create", Args: []string{"Subject", "Description"}}, worker)
	assert.True(t, res.Success)

	res = in.Execute(Command{Category: CategoryTask, Action: "claim"}, worker)
	assert.True(t, res.Success)
	claimed, ok := res.Data.(*coordination.Task)
	require.True(t, ok)

	res = in.Execute(Command{Category: CategoryTask, Action: "update", Args: []string{string(claimed.ID), "completed"}}, worker)
	assert.True(t, res.Success)

	res = in.Execute(Command{Category: CategoryTask, Action: "update", Args: []string{string(claimed.ID), "bogus"}}, worker)
	assert.False(t, res.Success)
}

func TestInterpreter_InboxRoundtrip(t *testing.T) {
	tasks := coordination.NewTaskStore()
	inbox := coordination.NewInbox()
	inbox.RegisterWorker("worker-1")
	inbox.RegisterWorker("worker-2")
	in := NewInterpreter(tasks, inbox)

	res := in.Execute(Command{Category: CategoryInbox, Action: "write", Args: []string{"worker-2", "hi"}}, "worker-1")
	assert.True(t, res.Success)

	res = in.Execute(Command{Category: CategoryInbox, Action: "count"}, "worker-2")
	assert.True(t, res.Success)

	res = in.Execute(Command{Category: CategoryInbox, Action: "mark-read"}, "worker-2")
	assert.True(t, res.Success)

	res, handled := in.ExecuteString("swarm inbox read", "worker-2")
	require.True(t, handled)
	assert.True(t, res.Success)
}

func TestExecuteString_NotSwarmCommand(t *testing.T) {
	tasks := coordination.NewTaskStore()
	inbox := coordination.NewInbox()
	in := NewInterpreter(tasks, inbox)

	_, handled := in.ExecuteString("ls -la", "worker-1")
	assert.False(t, handled)
}
