package session

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddErrorFlipsSyncMode(t *testing.T) {
	s := New(42)
	assert.False(t, s.SyncMode())

	s.AddError(Info{Number: 1205, Message: "deadlock"})
	assert.True(t, s.SyncMode())

	errs, broken := s.GetFullAndClear()
	require.Len(t, errs, 1)
	assert.Equal(t, int32(1205), errs[0].Number)
	assert.False(t, broken)

	errs, _ = s.GetFullAndClear()
	assert.Empty(t, errs)
}

func TestStoreAndRestoreAfterAttentionPreservesOriginalFailure(t *testing.T) {
	s := New(1)
	s.AddError(Info{Message: "original failure"})

	s.StoreForAttention()
	errs, _ := s.GetFullAndClear()
	assert.Empty(t, errs, "errors must be hidden while attention is outstanding")

	s.AddError(Info{Message: "attention-induced noise"})

	s.RestoreAfterAttention()
	errs, _ = s.GetFullAndClear()
	require.Len(t, errs, 2)
	assert.Equal(t, "original failure", errs[0].Message)
	assert.Equal(t, "attention-induced noise", errs[1].Message)
}

func activateWithScopedOwner(s *Session) {
	owner := new(Owner)
	s.Activate(owner)
	runtime.KeepAlive(owner)
}

func TestOrphanedRequiresPositiveActivationAndDeadOwner(t *testing.T) {
	s := New(1)
	assert.False(t, s.Orphaned(), "never activated is never orphaned")

	activateWithScopedOwner(s)

	runtime.GC()
	runtime.GC()

	assert.True(t, s.Orphaned(), "owner should become unreachable once it goes out of scope")
}

func TestReclaimResetsActivation(t *testing.T) {
	s := New(1)
	owner := new(Owner)
	s.Activate(owner)
	runtime.KeepAlive(owner)

	s.Reclaim()
	assert.False(t, s.Orphaned())
	assert.False(t, s.Broken())
}

func TestDeactivateClearsOrphanCandidacy(t *testing.T) {
	s := New(1)
	owner := new(Owner)
	s.Activate(owner)
	s.Deactivate()
	runtime.KeepAlive(owner)

	assert.False(t, s.Orphaned(), "a cleanly deactivated session is never orphaned regardless of owner liveness")
}
