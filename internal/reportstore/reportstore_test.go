package reportstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveReadListDelete(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())
	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)

	report := Report{
		ReportID:        NewReportID(now, "research prompt injection defenses"),
		CreatedAt:       now,
		TaskDescription: "research prompt injection defenses",
		Summary:         "found three mitigation classes",
		KeyFindings:     []string{"input sanitization", "output filtering"},
		Iterations:      4,
		Metadata:        map[string]any{"todos_total": 2},
	}

	path, err := store.Save(ctx, "search", report)
	require.NoError(t, err)
	assert.FileExists(t, path)

	ids, err := store.List(ctx, "search", now)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, report.ReportID, ids[0])

	content, err := store.Read(ctx, "search", now, report.ReportID)
	require.NoError(t, err)
	assert.Contains(t, content, "found three mitigation classes")
	assert.Contains(t, content, "input sanitization")

	require.NoError(t, store.Delete(ctx, "search", now, report.ReportID))
	ids, err = store.List(ctx, "search", now)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewReportID_FormatAndDeterminism(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id1 := NewReportID(now, "same task")
	id2 := NewReportID(now, "same task")
	assert.Equal(t, id1, id2)
	assert.Equal(t, "20260102_030405_", id1[:16])
	assert.Len(t, id1, 16+8)
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

func TestWithDistLock_AcquiredAndReleasedAroundSave(t *testing.T) {
	ctx := context.Background()
	lock := &fakeDistLock{}
	store := NewWithOptions(t.TempDir(), WithDistLock(lock))
	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)

	report := Report{
		ReportID:        NewReportID(now, "distributed save"),
		CreatedAt:       now,
		TaskDescription: "distributed save",
	}

	_, err := store.Save(ctx, "search", report)
	require.NoError(t, err)
	assert.Equal(t, 1, lock.acquired)
	assert.False(t, lock.held["search/"+report.ReportID], "lock must be released after Save returns")
}
