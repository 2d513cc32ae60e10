// Package errkind enumerates the normalized failure categories tool
// dispatch and model calls can produce. Only the model transport boundary
// returns a bare Go error that propagates; everywhere else a Kind is
// attached to a result record so the calling loop can continue.
package errkind

// Kind classifies why an operation did not succeed normally.
type Kind string

const (
	UnknownTool        Kind = "unknown_tool"
	ArgumentParseError Kind = "argument_parse_error"
	Timeout            Kind = "timeout"
	ToolFailure        Kind = "tool_failure"
	ModelTransient     Kind = "model_transient"
	ModelFatal         Kind = "model_fatal"
	CompactionFailure  Kind = "compaction_failure"
	PersistenceFailure Kind = "persistence_failure"
)

// Retryable reports whether an operation that failed with this Kind should
// be retried by the caller (only ModelTransient is, per the retry/backoff
// policy applied to the model transport).
func (k Kind) Retryable() bool {
	return k == ModelTransient
}

// Fatal reports whether this Kind should abort the current run rather than
// being recorded as a per-call result and continuing.
func (k Kind) Fatal() bool {
	return k == ModelFatal
}
