package memory

import (
	"context"
	"os"
	"testing"

	"agentrt/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompactProvider struct {
	summary string
	err     error
	calls   int
}

func (f *fakeCompactProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, toolChoice llm.ToolChoice) (llm.Message, error) {
	f.calls++
	if f.err != nil {
		return llm.Message{}, f.err
	}
	return llm.Message{Role: "assistant", Content: f.summary}, nil
}

func (f *fakeCompactProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, toolChoice llm.ToolChoice, h llm.StreamHandler) error {
	return nil
}

func TestNewManager_RatioOutsideRangeFallsBackToDefault(t *testing.T) {
	store := NewFileStore(t.TempDir())
	m, err := NewManager(context.Background(), store, nil, "", Config{Ratio: 1.5}, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.92, m.ratio, 0.0001)
}

func TestCheckAndCompact_NoTriggerBelowThreshold(t *testing.T) {
	store := NewFileStore(t.TempDir())
	provider := &fakeCompactProvider{summary: "should not be called"}
	m, err := NewManager(context.Background(), store, provider, "sess-1", Config{}, false)
	require.NoError(t, err)

	m.Add(llm.Message{Role: "user", Content: "hello"})
	result := m.CheckAndCompact(context.Background())

	assert.False(t, result.Compacted)
	assert.Equal(t, 0, provider.calls)
}

func TestCheckAndCompact_CompactsAndTruncatesOnSuccess(t *testing.T) {
	store := NewFileStore(t.TempDir())
	provider := &fakeCompactProvider{summary: "背景：测试\n已完成：无"}
	m, err := NewManager(context.Background(), store, provider, "sess-2", Config{Ratio: 0.0001}, false)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		m.Add(llm.Message{Role: "user", Content: "a reasonably long message to push past threshold"})
	}

	result := m.CheckAndCompact(context.Background())
	require.True(t, result.Compacted)
	assert.Equal(t, keepLastMessages, len(m.session.Transcript))
	assert.NotEmpty(t, m.session.MidTermSummary)
}

func TestCheckAndCompact_PreservesTranscriptOnFailure(t *testing.T) {
	store := NewFileStore(t.TempDir())
	provider := &fakeCompactProvider{err: assertErr{}}
	m, err := NewManager(context.Background(), store, provider, "sess-3", Config{Ratio: 0.0001}, false)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		m.Add(llm.Message{Role: "user", Content: "a reasonably long message to push past threshold"})
	}
	before := len(m.session.Transcript)

	result := m.CheckAndCompact(context.Background())
	assert.False(t, result.Compacted)
	assert.Equal(t, before, len(m.session.Transcript))
	assert.Empty(t, m.session.MidTermSummary)
}

type assertErr struct{}

func (assertErr) Error() string { return "summarization backend unavailable" }

func TestAdjustCutForToolDeps_KeepsToolCallPairsTogether(t *testing.T) {
	messages := []llm.Message{
		{Role: "user", Content: "do a thing"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "search"}}},
		{Role: "tool", ToolID: "call-1", Content: "result"},
		{Role: "assistant", Content: "done"},
	}
	cut := adjustCutForToolDeps(messages, 2)
	assert.Equal(t, 1, cut)
}

func TestPersistAndLoadFromDisk_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	m, err := NewManager(ctx, store, nil, "sess-roundtrip", Config{}, false)
	require.NoError(t, err)
	m.Add(llm.Message{Role: "user", Content: "remember this"})
	require.NoError(t, m.Persist(ctx))

	_, statErr := os.Stat(dir)
	require.NoError(t, statErr)

	reloaded, err := NewManager(ctx, store, nil, "sess-roundtrip", Config{}, true)
	require.NoError(t, err)
	require.Len(t, reloaded.Context(), 1)
	assert.Equal(t, "remember this", reloaded.Context()[0].Content)
}
