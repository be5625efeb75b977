package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStore_CreateAndList(t *testing.T) {
	s := NewTaskStore()

	a := s.Create("write docs", "", "Writing docs")
	b := s.Create("write tests", "", "Writing tests")

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, TaskPending, a.Status)
	assert.NotEqual(t, a.ID, b.ID)

	got := s.List()
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}

func TestTaskStore_ListExcludesDeleted(t *testing.T) {
	s := NewTaskStore()
	a := s.Create("one", "", "")
	s.Create("two", "", "")

	s.Delete(a.ID)

	got := s.List()
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].Subject)
}

func TestTaskStore_ClaimSkipsBlockedAndOwned(t *testing.T) {
	s := NewTaskStore()
	blocker := s.Create("blocker", "", "")
	blocked := s.Create("blocked", "", "")
	s.Update(blocked.ID, TaskPatch{AddBlockedBy: []TaskID{blocker.ID}})

	claimed := s.Claim(WorkerID("w1"))
	require.NotNil(t, claimed)
	assert.Equal(t, blocker.ID, claimed.ID, "blocked task must not be claimable before its blocker")
	assert.Equal(t, TaskInProgress, claimed.Status)
	require.NotNil(t, claimed.Owner)
	assert.Equal(t, WorkerID("w1"), *claimed.Owner)

	second := s.Claim(WorkerID("w2"))
	assert.Nil(t, second, "remaining task is still blocked")
}

func TestTaskStore_ClaimNumericOrder(t *testing.T) {
	s := NewTaskStore()
	for i := 0; i < 11; i++ {
		s.Create("t", "", "")
	}
	// task "2" must be claimed before task "10" — lexical sort would invert this.
	for i := 0; i < 9; i++ {
		s.Claim(WorkerID("w"))
	}
	tenth := s.Claim(WorkerID("w"))
	require.NotNil(t, tenth)
	assert.Equal(t, TaskID("10"), tenth.ID)
}

func TestTaskStore_Update_BlockSymmetry(t *testing.T) {
	s := NewTaskStore()
	a := s.Create("a", "", "")
	b := s.Create("b", "", "")

	s.Update(a.ID, TaskPatch{AddBlocks: []TaskID{b.ID}})

	gotA := s.Get(a.ID)
	gotB := s.Get(b.ID)

	_, aBlocksB := gotA.Blocks[b.ID]
	_, bBlockedByA := gotB.BlockedBy[a.ID]
	assert.True(t, aBlocksB)
	assert.True(t, bBlockedByA)
}

func TestTaskStore_Update_SelfReferenceIgnored(t *testing.T) {
	s := NewTaskStore()
	a := s.Create("a", "", "")

	updated := s.Update(a.ID, TaskPatch{AddBlocks: []TaskID{a.ID}, AddBlockedBy: []TaskID{a.ID}})

	require.NotNil(t, updated)
	assert.Empty(t, updated.Blocks)
	assert.Empty(t, updated.BlockedBy)
}

func TestTaskStore_CompletingTaskClearsDownstreamBlocks(t *testing.T) {
	s := NewTaskStore()
	a := s.Create("a", "", "")
	b := s.Create("b", "", "")
	s.Update(b.ID, TaskPatch{AddBlockedBy: []TaskID{a.ID}})

	completed := TaskCompleted
	s.Update(a.ID, TaskPatch{Status: &completed})

	gotB := s.Get(b.ID)
	assert.Empty(t, gotB.BlockedBy)
	assert.True(t, gotB.Claimable())
}

func TestTaskStore_UpdateUnknownIDReturnsNil(t *testing.T) {
	s := NewTaskStore()
	subject := "x"
	got := s.Update(TaskID("does-not-exist"), TaskPatch{Subject: &subject})
	assert.Nil(t, got)
}

func TestTaskStore_MetadataPatchDelete(t *testing.T) {
	s := NewTaskStore()
	a := s.Create("a", "", "")
	v := "1"
	s.Update(a.ID, TaskPatch{MetadataPatch: map[string]*string{"k": &v}})

	got := s.Get(a.ID)
	assert.Equal(t, "1", got.Metadata["k"])

	s.Update(a.ID, TaskPatch{MetadataPatch: map[string]*string{"k": nil}})
	got = s.Get(a.ID)
	_, exists := got.Metadata["k"]
	assert.False(t, exists)
}
