package todostore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	item, err := store.Create(ctx, "sess-1", AgentMain, "write tests", "", PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)

	items, err := store.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	inProgress := StatusInProgress
	updated, err := store.Update(ctx, "sess-1", item.ID, &inProgress, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, updated.Status)
	assert.Equal(t, StatusPending, updated.PreviousStatus)

	require.NoError(t, store.Delete(ctx, "sess-1", item.ID))
	items, err = store.List(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSmartOrdering(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	low, _ := store.Create(ctx, "sess-2", AgentMain, "low priority pending", "", PriorityLow)
	high, _ := store.Create(ctx, "sess-2", AgentMain, "high priority pending", "", PriorityHigh)
	done, _ := store.Create(ctx, "sess-2", AgentMain, "completed", "", PriorityHigh)
	completed := StatusCompleted
	_, err := store.Update(ctx, "sess-2", done.ID, &completed, nil, nil, nil)
	require.NoError(t, err)

	items, err := store.List(ctx, "sess-2")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, high.ID, items[0].ID)
	assert.Equal(t, low.ID, items[1].ID)
	assert.Equal(t, done.ID, items[2].ID)
}

func TestLegacyBareArrayShapeTolerated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir)

	legacy := `[{"id":"abc","session_id":"sess-3","agent_type":"main","title":"legacy","status":"pending","priority":"medium","order":0}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sess-3.json"), []byte(legacy), 0o644))

	items, err := store.List(ctx, "sess-3")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "legacy", items[0].Title)
}

type fakeDistLock struct {
	acquired int
	held     map[string]bool
}

func (f *fakeDistLock) Lock(ctx context.Context, name string) (func(), error) {
	if f.held == nil {
		f.held = map[string]bool{}
	}
	f.acquired++
	f.held[name] = true
	return func() { f.held[name] = false }, nil
}

func TestWithDistLock_AcquiredAndReleasedAroundWrites(t *testing.T) {
	ctx := context.Background()
	lock := &fakeDistLock{}
	store := NewWithOptions(t.TempDir(), WithDistLock(lock))

	item, err := store.Create(ctx, "sess-5", AgentMain, "distributed write", "", PriorityMedium)
	require.NoError(t, err)
	assert.Equal(t, 1, lock.acquired)
	assert.False(t, lock.held["sess-5"], "lock must be released after Create returns")

	inProgress := StatusInProgress
	_, err = store.Update(ctx, "sess-5", item.ID, &inProgress, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, lock.acquired)
	assert.False(t, lock.held["sess-5"])
}

func TestHasActive(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	has, err := store.HasActive(ctx, "sess-4", AgentSearch)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = store.Create(ctx, "sess-4", AgentSearch, "look things up", "", PriorityMedium)
	require.NoError(t, err)

	has, err = store.HasActive(ctx, "sess-4", AgentSearch)
	require.NoError(t, err)
	assert.True(t, has)
}
