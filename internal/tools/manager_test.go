package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"testing"
	"time"

	"agentrt/internal/errkind"
	"agentrt/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{ sleep time.Duration }

func (t echoTool) Name() string { return "echo" }
func (t echoTool) JSONSchema() map[string]any {
	return map[string]any{"name": "echo", "description": "echoes input", "parameters": map[string]any{"type": "object"}}
}
func (t echoTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	if t.sleep > 0 {
		select {
		case <-time.After(t.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var args map[string]any
	_ = json.Unmarshal(raw, &args)
	return map[string]any{"ok": true, "echo": args}, nil
}

type sessionCapturingTool struct{ got map[string]any }

func (t *sessionCapturingTool) Name() string { return "x_subagent" }
func (t *sessionCapturingTool) JSONSchema() map[string]any {
	return map[string]any{"name": "x_subagent", "parameters": map[string]any{"type": "object"}}
}
func (t *sessionCapturingTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	_ = json.Unmarshal(raw, &t.got)
	return map[string]any{"ok": true}, nil
}

func TestExecuteTool_UnknownToolIsNormalized(t *testing.T) {
	reg := NewRegistry()
	m := NewManager(reg)
	result := m.ExecuteTool(context.Background(), "sess", llm.ToolCall{ID: "1", Name: "nope", Args: json.RawMessage(`{}`)})
	assert.Equal(t, errkind.UnknownTool, result.Kind)
}

func TestExecuteTool_ArgumentParseError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{})
	m := NewManager(reg)
	result := m.ExecuteTool(context.Background(), "sess", llm.ToolCall{ID: "1", Name: "echo", Args: json.RawMessage(`not json`)})
	assert.Equal(t, errkind.ArgumentParseError, result.Kind)
}

func TestExecuteTool_SessionIDAutoInjectedForSubagentTools(t *testing.T) {
	reg := NewRegistry()
	tool := &sessionCapturingTool{}
	reg.Register(tool)
	m := NewManager(reg)
	_ = m.ExecuteTool(context.Background(), "sess-123", llm.ToolCall{ID: "1", Name: "x_subagent", Args: json.RawMessage(`{}`)})
	assert.Equal(t, "sess-123", tool.got["session_id"])
}

func TestExecuteTool_TimeoutResolution(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{sleep: 200 * time.Millisecond})
	m := NewManager(reg, WithMaxConcurrency(1))
	m.defaultTimeout = 50 * time.Millisecond
	result := m.ExecuteTool(context.Background(), "sess", llm.ToolCall{ID: "1", Name: "echo", Args: json.RawMessage(`{}`)})
	assert.Equal(t, errkind.Timeout, result.Kind)
}

func TestExecuteToolCalls_PreservesOrderUnderConcurrency(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{sleep: 30 * time.Millisecond})
	m := NewManager(reg, WithMaxConcurrency(4))

	calls := make([]llm.ToolCall, 5)
	for i := range calls {
		calls[i] = llm.ToolCall{ID: string(rune('a' + i)), Name: "echo", Args: json.RawMessage(`{}`)}
	}
	results := m.ExecuteToolCalls(context.Background(), "sess", calls)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
		assert.Empty(t, r.Kind)
	}
}

func TestExecuteToolCalls_ConcurrencyBoundRespected(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{sleep: 60 * time.Millisecond})
	m := NewManager(reg, WithMaxConcurrency(2))

	calls := make([]llm.ToolCall, 4)
	for i := range calls {
		calls[i] = llm.ToolCall{ID: string(rune('a' + i)), Name: "echo", Args: json.RawMessage(`{}`)}
	}
	start := time.Now()
	m.ExecuteToolCalls(context.Background(), "sess", calls)
	elapsed := time.Since(start)
	// 4 calls at concurrency 2, 60ms each -> at least two batches (~120ms).
	assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(100))
}

type fakeCache struct{ texts, images int }

func (f *fakeCache) CacheText(ctx context.Context, text string) (string, error) {
	f.texts++
	return "file-text-1", nil
}
func (f *fakeCache) CacheBase64(ctx context.Context, data, mimeType string) (string, error) {
	f.images++
	return "file-img-1", nil
}

type bigResultTool struct{}

func (bigResultTool) Name() string { return "screenshot_tool" }
func (bigResultTool) JSONSchema() map[string]any {
	return map[string]any{"name": "screenshot_tool", "parameters": map[string]any{"type": "object"}}
}
func (bigResultTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	big := base64.StdEncoding.EncodeToString(make([]byte, 20000))
	return map[string]any{"data": map[string]any{"screenshot": big}}, nil
}

func TestExecuteTool_LargeResultCachedAndTruncated(t *testing.T) {
	reg := NewRegistry()
	reg.Register(bigResultTool{})
	cache := &fakeCache{}
	m := NewManager(reg, WithCache(cache))

	result := m.ExecuteTool(context.Background(), "sess", llm.ToolCall{ID: "1", Name: "screenshot_tool", Args: json.RawMessage(`{}`)})
	require.Empty(t, result.Kind)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(result.Content, &parsed))
	data := parsed["data"].(map[string]any)
	assert.Equal(t, "file-img-1", data["screenshot_file_id"])
	assert.Equal(t, 1, cache.images)
	assert.Less(t, len(result.Content), 20000)
}

func TestMain(m *testing.M) {
	os.Unsetenv("TOOL_EXECUTION_TIMEOUT")
	os.Unsetenv("MAX_TOOL_CONCURRENCY")
	os.Unsetenv("TOOL_RESULT_MAX_SIZE")
	os.Exit(m.Run())
}
