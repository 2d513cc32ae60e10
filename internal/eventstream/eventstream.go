// Package eventstream defines the typed events the main loop and its
// sub-agents emit as they run, and a small bounded-channel stream to carry
// them to a caller without unbounded buffering.
package eventstream

import (
	"agentrt/internal/llm"
)

// Kind tags the shape of an Event's payload.
type Kind string

const (
	KindMeta      Kind = "meta"
	KindContent   Kind = "content"
	KindToolCall  Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindDone      Kind = "done"
)

// Event is one record in the stream. Exactly one of the typed payload
// fields is meaningful, selected by Kind.
type Event struct {
	Kind Kind `json:"kind"`

	Meta    map[string]any `json:"meta,omitempty"`
	Content string         `json:"content,omitempty"`

	ToolCall   *llm.ToolCall `json:"tool_call,omitempty"`
	ToolResult *ToolResult   `json:"tool_result,omitempty"`

	Done *DonePayload `json:"done,omitempty"`
}

// ToolResult carries one tool's dispatch outcome back to the client,
// ordered to match the tool_calls that were issued.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
}

// DonePayload closes out a run.
type DonePayload struct {
	Reason string `json:"reason"`
}

// Stream is a bounded channel of Events. Producers call Emit; Close signals
// no more events will arrive. Consumers range over Events().
type Stream struct {
	ch chan Event
}

// New returns a Stream with the given buffer capacity. A small positive
// capacity (e.g. 16) lets content-chunk emission and tool dispatch overlap
// without blocking the loop on every single event.
func New(capacity int) *Stream {
	if capacity <= 0 {
		capacity = 16
	}
	return &Stream{ch: make(chan Event, capacity)}
}

// Emit blocks until the event is queued or ctx-independent channel send
// completes; callers select on a context's Done channel alongside this when
// cancellation matters.
func (s *Stream) Emit(e Event) {
	s.ch <- e
}

// Close signals no further events will be sent. Must be called exactly once
// by the producer.
func (s *Stream) Close() {
	close(s.ch)
}

// Events returns the receive side for consumers to range over.
func (s *Stream) Events() <-chan Event {
	return s.ch
}
