package tools

import (
	"context"
	"encoding/json"

	"agentrt/internal/llm"
)

// DispatchEvent captures a single tool dispatch invocation and result.
type DispatchEvent struct {
	Name    string
	Args    json.RawMessage
	Payload []byte
	Err     error
}

type recordingRegistry struct {
	base Registry
	on   func(DispatchEvent)
}

// NewRecordingRegistry wraps an existing Registry and calls on for each Dispatch.
func NewRecordingRegistry(base Registry, on func(DispatchEvent)) Registry {
	if base == nil {
		base = NewRegistry()
	}
	return &recordingRegistry{base: base, on: on}
}

func (r *recordingRegistry) Register(t Tool)           { r.base.Register(t) }
func (r *recordingRegistry) Schemas() []llm.ToolSchema { return r.base.Schemas() }
func (r *recordingRegistry) Has(name string) bool      { return r.base.Has(name) }

// Dispatch forwards to base and then reports the call and its outcome to on.
func (r *recordingRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	payload, err := r.base.Dispatch(ctx, name, raw)
	if r.on != nil {
		r.on(DispatchEvent{Name: name, Args: raw, Payload: payload, Err: err})
	}
	return payload, err
}

type filteredRegistry struct {
	base    Registry
	allowed map[string]bool
}

// NewFilteredRegistry wraps base so only the named tools are exposed to a
// caller (e.g. the top-level agent's configured allow-list), while Dispatch
// still reaches every tool base knows about so sub-agents with a wider
// ToolNames set keep working against the same underlying registry.
func NewFilteredRegistry(base Registry, allow []string) Registry {
	allowed := make(map[string]bool, len(allow))
	for _, n := range allow {
		allowed[n] = true
	}
	return &filteredRegistry{base: base, allowed: allowed}
}

func (r *filteredRegistry) Register(t Tool) { r.base.Register(t) }

func (r *filteredRegistry) Has(name string) bool {
	return r.allowed[name] && r.base.Has(name)
}

func (r *filteredRegistry) Schemas() []llm.ToolSchema {
	all := r.base.Schemas()
	out := make([]llm.ToolSchema, 0, len(all))
	for _, s := range all {
		if r.allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func (r *filteredRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	return r.base.Dispatch(ctx, name, raw)
}
