// Package memory implements the per-session transcript store and the
// auto-compaction policy that keeps a running conversation inside a model's
// context window.
package memory

import (
	"time"

	"agentrt/internal/llm"
)

// Session is the persisted unit of conversational state: the raw transcript
// plus whatever mid-term summary has been produced by compaction so far.
type Session struct {
	ID               string       `json:"session_id"`
	Transcript       []llm.Message `json:"transcript"`
	MidTermSummary   string       `json:"mid_term_summary,omitempty"`
	Compaction       *llm.CompactionItem `json:"compaction,omitempty"`
	SummarizedCount  int          `json:"summarized_count"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// CompactResult reports what CheckAndCompact did, mirroring the event
// payload the main loop emits to the client after every turn.
type CompactResult struct {
	Compacted bool `json:"compacted"`
	Tokens    int  `json:"tokens"`
	Threshold int  `json:"threshold"`
}
