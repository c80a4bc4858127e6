package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/protocol"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSession_Approvals(t *testing.T) {
	s := New("abc", "task", policy.Constraints{})
	assert.False(t, s.IsApproved("b"))

	s.Approve("b")
	s.Approve("a")
	s.Approve("b")
	s.Approve("")
	assert.Equal(t, []string{"a", "b"}, s.ApprovedFingerprints)
	assert.True(t, s.IsApproved("a"))

	s.ApprovedFingerprints = append(s.ApprovedFingerprints, "0unsorted")
	assert.True(t, s.IsApproved("0unsorted"))
	assert.True(t, s.IsApproved("a"))
	assert.False(t, s.IsApproved(""))

	assert.False(t, s.Pending())
	s.PendingFingerprint = "fp"
	assert.True(t, s.Pending())
	s.PendingConfirmationID = "cid"
	s.ClearPending()
	assert.False(t, s.Pending())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	sess := New("sess-1", "open notepad", policy.Constraints{BlockedApps: []string{"Terminal"}, MaxSteps: 9})
	sess.StepIndex = 3
	sess.LastAction = &action.Envelope{Action: action.Drag{From: action.Point{X: 1, Y: 2}, To: action.Point{X: 3, Y: 4}}}
	sess.LastResult = protocol.NewResult(protocol.ResultExecuted, "dry-run:drag")
	sess.PendingConfirmationID = "cid"
	sess.PendingFingerprint = "fp"
	sess.ApprovedFingerprints = []string{"z", "a", "z"}
	require.NoError(t, store.Save(ctx, sess))
	assert.False(t, sess.UpdatedAt.IsZero())

	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "open notepad", got.Task)
	assert.Equal(t, 3, got.StepIndex)
	assert.Equal(t, 9, got.Constraints.MaxSteps)
	assert.Equal(t, []string{"Terminal"}, got.Constraints.BlockedApps)
	assert.Equal(t, sess.LastAction.Action, got.LastAction.Action)
	assert.Equal(t, protocol.ResultExecuted, got.LastResult.Status)
	assert.Equal(t, "cid", got.PendingConfirmationID)
	assert.Equal(t, "fp", got.PendingFingerprint)
	assert.Equal(t, []string{"a", "z"}, got.ApprovedFingerprints)

	// Saving again overwrites.
	got.StepIndex = 4
	got.ClearPending()
	require.NoError(t, store.Save(ctx, got))
	again, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 4, again.StepIndex)
	assert.False(t, again.Pending())
}

func TestSQLiteStore_NotFoundAndDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := store.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, store.Save(ctx, New("s", "t", policy.Constraints{})))
	deleted, err = store.Delete(ctx, "s")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = store.Load(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.Save(ctx, &Session{}))
}

func TestSQLiteStore_List(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	first := New("first", "t1", policy.Constraints{})
	second := New("second", "t2", policy.Constraints{})
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].SessionID, list[1].SessionID}
	assert.ElementsMatch(t, []string{"first", "second"}, ids)

	// Touching first moves it to the front.
	first.StepIndex = 1
	require.NoError(t, store.Save(ctx, first))
	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", list[0].SessionID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, New("keep", "task", policy.Constraints{})))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Load(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "task", got.Task)
}
