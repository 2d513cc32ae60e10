package tools

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"agentrt/internal/errkind"
	"agentrt/internal/llm"
	"agentrt/internal/observability"

	"golang.org/x/sync/semaphore"
)

// ExecResult is the normalized outcome of dispatching one tool call. Kind is
// empty on success; it is never a propagated Go error except at the
// ModelClient boundary, which this package never touches.
type ExecResult struct {
	ToolCallID string
	ToolName   string
	Content    []byte
	Kind       errkind.Kind
	Err        string
	DurationMS int64
}

// Manager wraps a Registry with the execution policy spec'd for tool
// dispatch: per-call timeout resolution, session_id auto-injection for
// TODO/sub-agent tools, large-result truncation, and bounded-concurrency
// order-preserving batch dispatch.
type Manager struct {
	registry Registry

	defaultTimeout time.Duration
	maxConcurrency int
	maxResultBytes int

	cache BlobCache
}

// BlobCache is the minimal surface Manager needs to spill oversized tool
// result fields out of the transcript (see internal/filestore.Store).
type BlobCache interface {
	CacheText(ctx context.Context, text string) (string, error)
	CacheBase64(ctx context.Context, data string, mimeType string) (string, error)
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithCache attaches a BlobCache used for large-result truncation.
func WithCache(c BlobCache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

// WithMaxConcurrency overrides MAX_TOOL_CONCURRENCY programmatically.
func WithMaxConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

// NewManager builds a Manager over reg, reading its timeout/concurrency/
// truncation defaults from the environment knobs this system is configured
// with (TOOL_EXECUTION_TIMEOUT, MAX_TOOL_CONCURRENCY, TOOL_RESULT_MAX_SIZE).
func NewManager(reg Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:       reg,
		defaultTimeout: envDuration("TOOL_EXECUTION_TIMEOUT", 120*time.Second),
		maxConcurrency: envInt("MAX_TOOL_CONCURRENCY", 1),
		maxResultBytes: envInt("TOOL_RESULT_MAX_SIZE", 10240),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}

func needsSessionID(toolName string) bool {
	return strings.HasSuffix(toolName, "_subagent") || strings.Contains(toolName, "todo")
}

// resolveTimeout implements the documented precedence: an explicit
// "_timeout" argument wins, then the manager's configured default (itself
// sourced from TOOL_EXECUTION_TIMEOUT), then a hardcoded 120s. A
// non-positive value means "no timeout" — the call runs unbounded.
func resolveTimeout(args map[string]any, def time.Duration) time.Duration {
	if raw, ok := args["_timeout"]; ok {
		switch v := raw.(type) {
		case float64:
			return time.Duration(v) * time.Second
		case int:
			return time.Duration(v) * time.Second
		}
	}
	return def
}

// ExecuteTool dispatches a single tool call, applying timeout resolution,
// session_id auto-injection, and large-result truncation, and normalizes
// every failure mode into an ExecResult instead of a Go error.
func (m *Manager) ExecuteTool(ctx context.Context, sessionID string, call llm.ToolCall) ExecResult {
	start := time.Now()
	result := ExecResult{ToolCallID: call.ID, ToolName: call.Name}

	var argMap map[string]any
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &argMap); err != nil {
			result.Kind = errkind.ArgumentParseError
			result.Err = err.Error()
			result.Content = jsonError(err)
			result.DurationMS = time.Since(start).Milliseconds()
			return result
		}
	}
	if argMap == nil {
		argMap = map[string]any{}
	}

	if needsSessionID(call.Name) {
		if _, has := argMap["session_id"]; !has && sessionID != "" {
			argMap["session_id"] = sessionID
		}
	}

	raw, err := json.Marshal(argMap)
	if err != nil {
		result.Kind = errkind.ArgumentParseError
		result.Err = err.Error()
		result.Content = jsonError(err)
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	}

	timeout := resolveTimeout(argMap, m.defaultTimeout)
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if !m.registry.Has(call.Name) {
		result.Kind = errkind.UnknownTool
		result.Err = "unknown tool: " + call.Name
		result.Content = jsonError(result.Err)
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	}

	payload, dispatchErr := m.registry.Dispatch(callCtx, call.Name, raw)
	result.DurationMS = time.Since(start).Milliseconds()

	if dispatchErr != nil {
		if callCtx.Err() != nil {
			result.Kind = errkind.Timeout
			result.Err = callCtx.Err().Error()
		} else {
			result.Kind = errkind.ToolFailure
			result.Err = dispatchErr.Error()
		}
		result.Content = jsonError(result.Err)
		return result
	}
	if callCtx.Err() != nil {
		result.Kind = errkind.Timeout
		result.Err = callCtx.Err().Error()
		result.Content = jsonError(result.Err)
		return result
	}

	result.Content = m.truncateIfNeeded(ctx, payload)
	return result
}

// truncateIfNeeded implements the large-result handling policy: payloads
// under the configured size pass through untouched. Oversized non-JSON
// payloads are truncated in place with an annotation; oversized JSON
// payloads with a top-level "data" object have their long screenshot/pdf/
// text fields spilled to the blob cache and replaced with a short preview
// plus a *_file_id/*_size/*_truncated trio.
func (m *Manager) truncateIfNeeded(ctx context.Context, payload []byte) []byte {
	if m.maxResultBytes <= 0 || len(payload) <= m.maxResultBytes {
		return payload
	}

	var envelope map[string]any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		preview := payload[:m.maxResultBytes]
		out, _ := json.Marshal(map[string]any{
			"truncated": true,
			"preview":   string(preview),
		})
		return out
	}

	data, ok := envelope["data"].(map[string]any)
	if !ok {
		preview := payload[:m.maxResultBytes]
		out, _ := json.Marshal(map[string]any{
			"truncated": true,
			"preview":   string(preview),
		})
		return out
	}

	const previewChars = 512
	cached := false
	for _, field := range []string{"screenshot", "pdf", "text"} {
		val, ok := data[field].(string)
		if !ok || len(val) <= m.maxResultBytes {
			continue
		}
		mimeType := "text/plain"
		var fileID string
		var err error
		if m.cache == nil {
			continue
		}
		if field == "screenshot" {
			mimeType = "image/png"
			fileID, err = m.cache.CacheBase64(ctx, val, mimeType)
		} else if field == "pdf" {
			mimeType = "application/pdf"
			fileID, err = m.cache.CacheBase64(ctx, val, mimeType)
		} else {
			fileID, err = m.cache.CacheText(ctx, val)
		}
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("field", field).Msg("tool_result_cache_failed")
			continue
		}

		preview := val
		if len(preview) > previewChars {
			preview = preview[:previewChars]
		}
		data[field] = preview
		data[field+"_file_id"] = fileID
		data[field+"_size"] = len(val)
		data[field+"_truncated"] = true
		cached = true
	}
	if cached {
		data["_summary"] = "one or more large fields were cached; use the *_file_id to retrieve full content"
	}
	envelope["data"] = data

	out, err := json.Marshal(envelope)
	if err != nil {
		return payload
	}
	return out
}

func jsonError(errOrMsg any) []byte {
	var msg string
	switch v := errOrMsg.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	}
	b, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	return b
}

// ExecuteToolCalls dispatches all calls, preserving the input order in the
// returned slice regardless of completion order, bounded by the manager's
// configured concurrency.
func (m *Manager) ExecuteToolCalls(ctx context.Context, sessionID string, calls []llm.ToolCall) []ExecResult {
	results := make([]ExecResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	maxConcurrency := int64(m.maxConcurrency)
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	sem := semaphore.NewWeighted(maxConcurrency)

	var wg sync.WaitGroup
	log := observability.LoggerWithTrace(ctx)
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = ExecResult{ToolCallID: call.ID, ToolName: call.Name, Kind: errkind.Timeout, Err: err.Error(), Content: jsonError(err)}
				return
			}
			defer sem.Release(1)
			results[i] = m.ExecuteTool(ctx, sessionID, call)
			if results[i].Kind != "" {
				log.Warn().Str("tool", call.Name).Str("kind", string(results[i].Kind)).Msg("tool_execution_nonsuccess")
			}
		}(i, call)
	}
	wg.Wait()
	return results
}
