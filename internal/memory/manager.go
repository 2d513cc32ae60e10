package memory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"agentrt/internal/llm"
	"agentrt/internal/observability"

	"github.com/google/uuid"
)

const keepLastMessages = 6

// Config controls the compaction policy. Ratio must lie in (0, 1); anything
// outside that range is rejected by NewManager in favor of the default,
// exactly as the ratio knob's original implementation tolerates malformed
// environment input rather than failing startup.
type Config struct {
	Ratio        float64
	SummaryModel string
}

func defaultRatio() float64 {
	if v := strings.TrimSpace(os.Getenv("AUTO_COMPACT_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			return f
		}
	}
	return 0.92
}

// Manager owns one session's transcript and the compaction policy applied
// to it. It is not safe for concurrent use by multiple goroutines on the
// same session; callers serialize access to a session at the agent-loop
// level.
type Manager struct {
	store    Store
	compact  llm.Provider
	session  *Session
	ratio    float64
	summaryModel string
}

// NewManager creates (or, with loadHistory, loads) the session identified by
// sessionID. An empty sessionID generates a fresh one.
func NewManager(ctx context.Context, store Store, compactProvider llm.Provider, sessionID string, cfg Config, loadHistory bool) (*Manager, error) {
	ratio := cfg.Ratio
	if ratio <= 0 || ratio >= 1 {
		ratio = defaultRatio()
	}

	m := &Manager{store: store, compact: compactProvider, ratio: ratio, summaryModel: cfg.SummaryModel}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if loadHistory {
		if err := m.LoadFromDisk(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if m.session == nil {
		now := time.Now()
		m.session = &Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}
	}
	return m, nil
}

// SessionID returns the session this manager is bound to.
func (m *Manager) SessionID() string {
	return m.session.ID
}

// Add appends a message to the short-term transcript.
func (m *Manager) Add(msg llm.Message) {
	m.session.Transcript = append(m.session.Transcript, msg)
}

// Load replaces the short-term transcript wholesale, used when replaying a
// caller-supplied history at the start of a run.
func (m *Manager) Load(messages []llm.Message) {
	m.session.Transcript = append([]llm.Message{}, messages...)
}

// Context returns the messages to send to the model: an optional summary
// message followed by the raw short-term transcript. The plain-text summary
// is always the form sent here; the compaction blob, when one exists, is not
// added to the returned messages (dual summary encoding).
func (m *Manager) Context() []llm.Message {
	out := make([]llm.Message, 0, len(m.session.Transcript)+1)
	// The compaction blob (m.session.Compaction), when present, travels with
	// the request a CompactionProvider issues rather than as a message; the
	// plain-text summary below is still included so providers without native
	// replay support see equivalent context.
	if m.session.MidTermSummary != "" {
		out = append(out, llm.Message{
			Role:    "system",
			Content: "Summary of earlier conversation:\n" + m.session.MidTermSummary,
		})
	}
	out = append(out, m.session.Transcript...)
	return out
}

// estimateTokens mirrors the original heuristic: character count divided by
// four, floored, minimum of one token for any non-empty content.
func estimateTokens(content string) int {
	n := len([]rune(content)) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func (m *Manager) estimatedTotalTokens() int {
	total := 0
	if m.session.MidTermSummary != "" {
		total += estimateTokens(m.session.MidTermSummary)
	}
	for _, msg := range m.session.Transcript {
		total += estimateTokens(msg.Content)
	}
	return total
}

func (m *Manager) contextWindowTokens() int {
	if m.summaryModel == "" {
		return 32_000
	}
	if size, ok := llm.ContextSize(m.summaryModel); ok && size > 0 {
		return size
	}
	return 32_000
}

// CheckAndCompact estimates the current token usage and, if it exceeds
// ratio*context_window, summarizes everything but the last keepLastMessages
// messages. On success the transcript is truncated to that tail; on failure
// the transcript is left untouched so no conversational state is lost — a
// deliberate departure from summarization code that truncates unconditionally.
func (m *Manager) CheckAndCompact(ctx context.Context) CompactResult {
	threshold := int(float64(m.contextWindowTokens()) * m.ratio)
	tokens := m.estimatedTotalTokens()

	result := CompactResult{Compacted: false, Tokens: tokens, Threshold: threshold}
	if tokens < threshold {
		return result
	}
	if len(m.session.Transcript) <= keepLastMessages {
		return result
	}

	cut := len(m.session.Transcript) - keepLastMessages
	cut = adjustCutForToolDeps(m.session.Transcript, cut)
	if cut <= 0 {
		return result
	}

	chunk := m.session.Transcript[:cut]
	summary, compactionBlob, err := m.summarize(ctx, chunk)
	log := observability.LoggerWithTrace(ctx)
	if err != nil || summary == "" {
		log.Warn().Err(err).Str("session", m.session.ID).Msg("memory_compaction_failed_preserving_transcript")
		return result
	}

	m.session.MidTermSummary = summary
	m.session.Compaction = compactionBlob
	m.session.Transcript = append([]llm.Message{}, m.session.Transcript[cut:]...)
	m.session.SummarizedCount += cut

	result.Compacted = true
	log.Info().Str("session", m.session.ID).Int("tokens", tokens).Int("threshold", threshold).Msg("memory_compacted")
	return result
}

// adjustCutForToolDeps walks the proposed cut point backward until it no
// longer separates an assistant message's tool_calls from the tool messages
// that answer them. Several providers reject a dangling tool message with no
// preceding matching tool_use, so the retained tail must keep pairs intact.
func adjustCutForToolDeps(messages []llm.Message, cut int) int {
	if cut <= 0 || cut >= len(messages) {
		return cut
	}

	needed := map[string]bool{}
	for i := cut; i < len(messages); i++ {
		if messages[i].Role == "tool" && messages[i].ToolID != "" {
			needed[messages[i].ToolID] = true
		}
	}
	if len(needed) == 0 {
		return cut
	}

	for i := cut - 1; i >= 0; i-- {
		if messages[i].Role != "assistant" || len(messages[i].ToolCalls) == 0 {
			continue
		}
		for _, tc := range messages[i].ToolCalls {
			if needed[tc.ID] {
				cut = i
			}
		}
	}
	return cut
}

func (m *Manager) summarize(ctx context.Context, chunk []llm.Message) (string, *llm.CompactionItem, error) {
	if m.compact == nil {
		return "", nil, fmt.Errorf("no compaction model configured")
	}

	prompt := buildCompactionPrompt(m.session.MidTermSummary, chunk)
	model := m.summaryModel
	if model == "" {
		model = "compact"
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := m.compact.Chat(reqCtx, []llm.Message{{Role: "user", Content: prompt}}, nil, model, llm.ToolChoiceAuto)
	if err != nil {
		return "", nil, err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", nil, fmt.Errorf("empty summary returned")
	}

	var blob *llm.CompactionItem
	if cp, ok := m.compact.(llm.CompactionProvider); ok {
		if item, err := cp.Compact(ctx, chunk, model, m.session.Compaction); err == nil {
			blob = item
		}
	}
	return summary, blob, nil
}

// buildCompactionPrompt asks the model for a structured Chinese-language
// summary, matching the prompt shape of the system this runtime generalizes.
func buildCompactionPrompt(previous string, chunk []llm.Message) string {
	var sb strings.Builder
	sb.WriteString("请将以下对话压缩为结构化摘要，包含以下部分：\n")
	sb.WriteString("- 背景（background）\n- 关键事实（key facts）\n- 已完成事项（done）\n- 待办事项（todo）\n- 注意事项（cautions）\n\n")
	if previous != "" {
		sb.WriteString("此前摘要：\n")
		sb.WriteString(previous)
		sb.WriteString("\n\n")
	}
	sb.WriteString("对话内容：\n")
	for _, msg := range chunk {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", msg.Role, msg.Content))
	}
	return sb.String()
}

// Persist writes the current session state to the backing store.
func (m *Manager) Persist(ctx context.Context) error {
	return m.store.Save(ctx, m.session)
}

// LoadFromDisk replaces the in-memory session with whatever the store has
// for sessionID, if anything.
func (m *Manager) LoadFromDisk(ctx context.Context, sessionID string) error {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess != nil {
		m.session = sess
	}
	return nil
}
