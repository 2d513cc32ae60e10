package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"agentrt/internal/todostore"
)

// CreateSubagentTodoTool lets a sub-agent register a TODO against its own
// agent_type. If the session already has a pending or in-progress TODO of
// the same kind, creation is skipped and the existing item is reused instead
// of piling up duplicate plans every iteration.
type CreateSubagentTodoTool struct {
	Todos     *todostore.Store
	AgentType todostore.AgentType
}

func (t *CreateSubagentTodoTool) Name() string { return "create_subagent_todo" }

func (t *CreateSubagentTodoTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Create a TODO item scoped to this sub-agent's plan for the current session.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"session_id":  map[string]any{"type": "string"},
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"priority":    map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
			},
			"required": []string{"session_id", "title"},
		},
	}
}

type createTodoArgs struct {
	SessionID   string `json:"session_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

func (t *CreateSubagentTodoTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args createTodoArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args.SessionID == "" || args.Title == "" {
		return nil, fmt.Errorf("session_id and title are required")
	}

	active, err := t.Todos.HasActive(ctx, args.SessionID, t.AgentType)
	if err != nil {
		return nil, err
	}
	if active {
		items, err := t.Todos.List(ctx, args.SessionID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.AgentType == t.AgentType && (it.Status == todostore.StatusPending || it.Status == todostore.StatusInProgress) {
				return map[string]any{"skipped": true, "reason": "active todo already exists", "todo": it}, nil
			}
		}
	}

	priority := todostore.Priority(args.Priority)
	item, err := t.Todos.Create(ctx, args.SessionID, t.AgentType, args.Title, args.Description, priority)
	if err != nil {
		return nil, err
	}
	return map[string]any{"skipped": false, "todo": item}, nil
}

// UpdateSubagentTodoTool lets a sub-agent advance or edit one of its own TODO
// items by ID.
type UpdateSubagentTodoTool struct {
	Todos     *todostore.Store
	AgentType todostore.AgentType
}

func (t *UpdateSubagentTodoTool) Name() string { return "update_subagent_todo" }

func (t *UpdateSubagentTodoTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Update status, title, description, or priority of an existing TODO item.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"session_id":  map[string]any{"type": "string"},
				"id":          map[string]any{"type": "string"},
				"status":      map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"priority":    map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
			},
			"required": []string{"session_id", "id"},
		},
	}
}

type updateTodoArgs struct {
	SessionID   string  `json:"session_id"`
	ID          string  `json:"id"`
	Status      *string `json:"status"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
}

func (t *UpdateSubagentTodoTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args updateTodoArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args.SessionID == "" || args.ID == "" {
		return nil, fmt.Errorf("session_id and id are required")
	}

	var status *todostore.Status
	if args.Status != nil {
		s := todostore.Status(*args.Status)
		status = &s
	}
	var priority *todostore.Priority
	if args.Priority != nil {
		p := todostore.Priority(*args.Priority)
		priority = &p
	}

	item, err := t.Todos.Update(ctx, args.SessionID, args.ID, status, args.Title, args.Description, priority)
	if err != nil {
		return nil, err
	}
	return map[string]any{"todo": item}, nil
}
