package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentrt/internal/config"
	"agentrt/internal/errkind"
	"agentrt/internal/eventstream"
	"agentrt/internal/filestore"
	"agentrt/internal/llm"
	"agentrt/internal/ltm"
	"agentrt/internal/memory"
	"agentrt/internal/observability"
	"agentrt/internal/reportstore"
	"agentrt/internal/todostore"
	"agentrt/internal/tools"

	"github.com/google/uuid"
)

// Deps bundles every external collaborator a Loop needs. One Deps value is
// shared by the main loop and all of its sub-agents; only the SubAgentSpec
// varies between them (composition, not a parallel class hierarchy).
type Deps struct {
	Provider        llm.Provider
	CompactProvider llm.Provider
	ToolRegistry    tools.Registry
	ToolManager     *tools.Manager
	Sessions        memory.Store
	Todos           *todostore.Store
	Reports         *reportstore.Store
	LTM             *ltm.Store
	Files           *filestore.Store
	Runtime         config.RuntimeConfig
}

// SubAgentSpec is the value type that turns a generic Loop into a named
// sub-agent kind. The main loop is simply a Loop with the zero SubAgentSpec
// (Kind == KindMain).
type SubAgentSpec struct {
	Kind              todostore.AgentType
	Name              string
	Description       string
	SystemPrompt      string
	MaxIterations     int
	Model             string
	Provider          llm.Provider // overrides Deps.Provider when set
	ToolNames         []string     // nil means every tool in the registry
	PersistFullReport bool         // not read by Loop: finishSubAgent saves a ReportStore entry for every sub-agent kind
}

func (s SubAgentSpec) isMain() bool { return s.Kind == "" || s.Kind == todostore.AgentMain }

const (
	heavySubagentSuffix = "_subagent"
	heavyToolPrefix     = "tavily_"
	contentChunkSize    = 1000
	maxLTMAttachmentLen = 20_000
)

// Loop is the generic think/act/observe runner used for both the top-level
// conversation and every sub-agent kind.
type Loop struct {
	deps Deps
	spec SubAgentSpec
}

// NewMainLoop returns the top-level agent loop.
func NewMainLoop(deps Deps, systemPrompt string) *Loop {
	return &Loop{deps: deps, spec: SubAgentSpec{Kind: todostore.AgentMain, Name: "main", SystemPrompt: systemPrompt, MaxIterations: 999}}
}

// NewSubAgent returns a scoped Loop for the given sub-agent kind.
func NewSubAgent(deps Deps, spec SubAgentSpec) *Loop {
	if spec.MaxIterations <= 0 {
		spec.MaxIterations = 20
	}
	return &Loop{deps: deps, spec: spec}
}

// RunOptions parameterizes one invocation of Run.
type RunOptions struct {
	UserInput     string
	FileIDs       []string
	History       []llm.Message
	SessionID     string
	MaxIterations int
	SaveLTM       bool
}

// Run starts the loop in a goroutine and returns the event stream the caller
// should range over. The stream is closed exactly once, when the run ends.
func (l *Loop) Run(ctx context.Context, opts RunOptions) *eventstream.Stream {
	stream := eventstream.New(32)
	go l.run(ctx, opts, stream)
	return stream
}

func (l *Loop) provider() llm.Provider {
	if l.spec.Provider != nil {
		return l.spec.Provider
	}
	return l.deps.Provider
}

func (l *Loop) model() string {
	if l.spec.Model != "" {
		return l.spec.Model
	}
	return "default"
}

func (l *Loop) schemas() []llm.ToolSchema {
	all := l.deps.ToolRegistry.Schemas()
	if l.spec.ToolNames == nil {
		return all
	}
	allowed := make(map[string]bool, len(l.spec.ToolNames))
	for _, n := range l.spec.ToolNames {
		allowed[n] = true
	}
	out := make([]llm.ToolSchema, 0, len(all))
	for _, s := range all {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func (l *Loop) run(ctx context.Context, opts RunOptions, stream *eventstream.Stream) {
	defer stream.Close()
	log := observability.LoggerWithTrace(ctx)

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	mm, err := memory.NewManager(ctx, l.deps.Sessions, l.deps.CompactProvider, sessionID, memory.Config{Ratio: l.deps.Runtime.AutoCompactRatio, SummaryModel: l.model()}, true)
	if err != nil {
		log.Error().Err(err).Msg("memory_manager_init_failed")
		stream.Emit(eventstream.Event{Kind: eventstream.KindDone, Done: &eventstream.DonePayload{Reason: "memory_init_failed"}})
		return
	}

	systemPrompt := l.spec.SystemPrompt
	mm.Add(llm.Message{Role: "system", Content: systemPrompt})

	if l.spec.isMain() && l.deps.Runtime.LTMEnabled && l.deps.LTM != nil {
		if text, err := l.deps.LTM.Load(); err == nil && text != "" {
			mm.Add(llm.Message{Role: "system", Content: "Long-term memory:\n" + text})
		}
	}

	for _, h := range opts.History {
		if h.Role == "user" || h.Role == "assistant" {
			mm.Add(h)
		}
	}

	for _, fid := range opts.FileIDs {
		l.attachFile(ctx, mm, fid)
	}

	mm.Add(llm.Message{Role: "user", Content: opts.UserInput})

	compactResult := mm.CheckAndCompact(ctx)
	stream.Emit(eventstream.Event{Kind: eventstream.KindMeta, Meta: map[string]any{
		"compacted": compactResult.Compacted,
		"tokens":    compactResult.Tokens,
		"threshold": compactResult.Threshold,
	}})

	if l.deps.Todos != nil {
		if items, err := l.deps.Todos.List(ctx, sessionID); err == nil {
			pending := make([]todostore.Item, 0, len(items))
			for _, it := range items {
				if it.Status == todostore.StatusPending || it.Status == todostore.StatusInProgress {
					pending = append(pending, it)
				}
			}
			if len(pending) > 0 {
				mm.Add(llm.Message{Role: "system", Content: renderTodoReminder(pending)})
				stream.Emit(eventstream.Event{Kind: eventstream.KindMeta, Meta: map[string]any{"outstanding_todos": len(pending)}})
			}
		}
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = l.spec.MaxIterations
	}
	if maxIter <= 0 {
		maxIter = 999
	}

	// Sub-agents force tool_choice="required" for their first two iterations
	// so they commit to at least one tool call instead of bailing out with a
	// bare text answer before they've used any of their tools; iterations
	// after that fall back to "auto" like the main loop.
	for iter := 0; iter < maxIter; iter++ {
		schemas := l.schemas()
		toolChoice := llm.ToolChoiceAuto
		if !l.spec.isMain() && iter < 2 && len(schemas) > 0 {
			toolChoice = llm.ToolChoiceRequired
		}
		resp, err := l.provider().Chat(ctx, mm.Context(), schemas, l.model(), toolChoice)
		if err != nil {
			log.Error().Err(err).Int("iteration", iter).Msg("model_call_failed")
			stream.Emit(eventstream.Event{Kind: eventstream.KindDone, Done: &eventstream.DonePayload{Reason: "model_error"}})
			_ = mm.Persist(ctx)
			return
		}

		emitContentChunks(stream, resp.Content)

		if len(resp.ToolCalls) == 0 {
			mm.Add(resp)
			_ = mm.Persist(ctx)
			if opts.SaveLTM && l.deps.LTM != nil {
				l.extractLTM(ctx, opts.UserInput, resp.Content)
			}
			if !l.spec.isMain() {
				l.finishSubAgent(ctx, sessionID, opts)
			}
			stream.Emit(eventstream.Event{Kind: eventstream.KindDone, Done: &eventstream.DonePayload{Reason: "final"}})
			return
		}

		calls := resp.ToolCalls
		if !l.spec.isMain() {
			calls = l.throttleHeavyCalls(calls)
		}

		mm.Add(resp)
		for _, tc := range resp.ToolCalls {
			tc := tc
			stream.Emit(eventstream.Event{Kind: eventstream.KindToolCall, ToolCall: &tc})
		}

		results := l.deps.ToolManager.ExecuteToolCalls(ctx, sessionID, calls)
		byID := make(map[string]tools.ExecResult, len(results))
		for _, r := range results {
			byID[r.ToolCallID] = r
		}

		for _, tc := range resp.ToolCalls {
			r, ok := byID[tc.ID]
			if !ok {
				// Dropped by heavy-call throttling: still record a synthetic
				// tool result so no assistant tool_call is ever left unanswered.
				r = tools.ExecResult{ToolCallID: tc.ID, ToolName: tc.Name, Kind: errkind.ToolFailure, Content: []byte(`{"ok":false,"error":"deferred: heavy-call concurrency limit reached this iteration"}`)}
			}
			toolMsg := llm.Message{Role: "tool", ToolID: r.ToolCallID, ToolName: r.ToolName, Content: string(r.Content)}
			mm.Add(toolMsg)
			stream.Emit(eventstream.Event{Kind: eventstream.KindToolResult, ToolResult: &eventstream.ToolResult{
				ToolCallID: r.ToolCallID, ToolName: r.ToolName, Content: string(r.Content), Error: r.Err,
			}})
		}
	}

	if l.spec.isMain() {
		mm.Add(llm.Message{Role: "assistant", Content: "(reached maximum iterations without a final answer)"})
	}
	_ = mm.Persist(ctx)
	if !l.spec.isMain() {
		l.finishSubAgent(ctx, sessionID, opts)
	}
	stream.Emit(eventstream.Event{Kind: eventstream.KindDone, Done: &eventstream.DonePayload{Reason: "max_iterations"}})
}

func emitContentChunks(stream *eventstream.Stream, content string) {
	if content == "" {
		return
	}
	runes := []rune(content)
	for i := 0; i < len(runes); i += contentChunkSize {
		end := i + contentChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		stream.Emit(eventstream.Event{Kind: eventstream.KindContent, Content: string(runes[i:end])})
	}
}

func isHeavyCall(name string) bool {
	return strings.HasSuffix(name, heavySubagentSuffix) || strings.HasPrefix(name, heavyToolPrefix)
}

// throttleHeavyCalls admits every light call plus up to
// SUBAGENT_MAX_HEAVY_CALLS_PER_ITER heavy calls, in input order. Calls that
// don't make the cut are NOT dropped silently: the caller still records a
// synthetic tool result for each dropped id so invariant ordering holds.
func (l *Loop) throttleHeavyCalls(calls []llm.ToolCall) []llm.ToolCall {
	limit := l.deps.Runtime.SubagentMaxHeavyCallsPerIter
	admitted := make([]llm.ToolCall, 0, len(calls))
	heavyUsed := 0
	for _, c := range calls {
		if !isHeavyCall(c.Name) {
			admitted = append(admitted, c)
			continue
		}
		if heavyUsed < limit {
			admitted = append(admitted, c)
			heavyUsed++
		}
	}
	return admitted
}

func renderTodoReminder(items []todostore.Item) string {
	var sb strings.Builder
	sb.WriteString("Outstanding TODOs for this session (most urgent first):\n")
	limit := len(items)
	if limit > 10 {
		limit = 10
	}
	for _, it := range items[:limit] {
		fmt.Fprintf(&sb, "- [%s/%s] %s\n", it.Status, it.Priority, it.Title)
	}
	return sb.String()
}

func (l *Loop) attachFile(ctx context.Context, mm *memory.Manager, fileID string) {
	if l.deps.Files == nil {
		return
	}
	if dataURL, err := l.deps.Files.GetImageDataURL(ctx, fileID); err == nil {
		mm.Add(llm.Message{
			Role: "user",
			Parts: []llm.ContentPart{{Kind: llm.ContentPartImage, ImageURL: dataURL}},
		})
		return
	}
	text, err := l.deps.Files.GetText(ctx, fileID)
	if err != nil {
		return
	}
	if len(text) > maxLTMAttachmentLen {
		text = text[:maxLTMAttachmentLen]
	}
	mm.Add(llm.Message{Role: "system", Content: fmt.Sprintf("[attachment:%s]\n%s", fileID, text)})
}

func (l *Loop) extractLTM(ctx context.Context, userInput, finalContent string) {
	prompt := fmt.Sprintf("Does the following exchange contain a durable fact worth remembering long-term? If yes, reply with a short title then the fact; if no, reply with exactly NONE.\n\nUser: %s\nAssistant: %s", userInput, finalContent)
	resp, err := l.provider().Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil, l.model(), llm.ToolChoiceAuto)
	if err != nil || strings.TrimSpace(resp.Content) == "" || strings.TrimSpace(resp.Content) == "NONE" {
		return
	}
	lines := strings.SplitN(strings.TrimSpace(resp.Content), "\n", 2)
	title := lines[0]
	body := ""
	if len(lines) > 1 {
		body = lines[1]
	}
	_ = l.deps.LTM.Append(title, body)
}

// finishSubAgent auto-completes any still-in-progress TODOs for this kind
// and writes a compact completion report.
func (l *Loop) finishSubAgent(ctx context.Context, sessionID string, opts RunOptions) {
	items, _ := l.deps.Todos.List(ctx, sessionID)
	completed := 0
	total := 0
	snapshot := make([]string, 0, len(items))
	for _, it := range items {
		if it.AgentType != l.spec.Kind {
			continue
		}
		total++
		if it.Status == todostore.StatusInProgress {
			status := todostore.StatusCompleted
			_, _ = l.deps.Todos.Update(ctx, sessionID, it.ID, &status, nil, nil, nil)
			it.Status = status
		}
		if it.Status == todostore.StatusCompleted {
			completed++
		}
		snapshot = append(snapshot, fmt.Sprintf("[%s] %s", it.Status, it.Title))
	}

	report := reportstore.Report{
		ReportID:        reportstore.NewReportID(time.Now(), opts.UserInput),
		CreatedAt:       time.Now(),
		TaskDescription: opts.UserInput,
		Summary:         truncateSummary(opts.UserInput, 200),
		TodosSnapshot:   snapshot,
		Metadata: map[string]any{
			"todos_completed": completed,
			"todos_total":     total,
			"subagent":        l.spec.Name,
		},
	}
	if _, err := l.deps.Reports.Save(ctx, string(l.spec.Kind), report); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("subagent_report_save_failed")
	}
}

func truncateSummary(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
