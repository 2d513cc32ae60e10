// Package todostore persists per-session TODO lists used by the main loop
// and its sub-agents to track multi-step plans across turns.
package todostore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentType identifies which kind of agent a TODO belongs to.
type AgentType string

const (
	AgentMain    AgentType = "main"
	AgentSearch  AgentType = "search"
	AgentBrowser AgentType = "browser"
	AgentWindows AgentType = "windows"
	AgentCustom  AgentType = "custom"
)

// Status is the lifecycle state of a TODO item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Priority ranks a TODO relative to its siblings.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var statusRank = map[Status]int{StatusInProgress: 0, StatusPending: 1, StatusCompleted: 2}
var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Item is one TODO entry.
type Item struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	AgentType      AgentType `json:"agent_type"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Status         Status    `json:"status"`
	Priority       Priority  `json:"priority"`
	Order          int       `json:"order"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
}

type document struct {
	Todos []Item `json:"todos"`
}

// Store is a per-session JSON-file-backed TODO list, tolerant of the legacy
// bare-array document shape some older sessions were written in.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	distLock DistLock
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithDistLock attaches a cross-process lock (see RedisDistLock) so multiple
// agent processes sharing dir don't race on the same session's file.
func WithDistLock(l DistLock) StoreOption {
	return func(s *Store) { s.distLock = l }
}

// NewWithOptions returns a Store rooted at dir with the given options applied.
func NewWithOptions(dir string, opts ...StoreOption) *Store {
	s := New(dir)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withLock acquires the in-process mutex for sessionID plus, if configured,
// the distributed lock, then runs fn. Both are released on return.
func (s *Store) withLock(ctx context.Context, sessionID string, fn func() error) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	if s.distLock != nil {
		release, err := s.distLock.Lock(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("acquire distributed lock for session %s: %w", sessionID, err)
		}
		defer release()
	}
	return fn()
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *Store) read(sessionID string) ([]Item, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Tolerate the legacy shape: a bare JSON array of items instead of
	// {"todos": [...]}.
	var bare []Item
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Todos, nil
}

func (s *Store) write(sessionID string, items []Item) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(document{Todos: items}, "", "  ")
	if err != nil {
		return err
	}
	final := s.path(sessionID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func sortSmart(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if statusRank[items[i].Status] != statusRank[items[j].Status] {
			return statusRank[items[i].Status] < statusRank[items[j].Status]
		}
		if priorityRank[items[i].Priority] != priorityRank[items[j].Priority] {
			return priorityRank[items[i].Priority] < priorityRank[items[j].Priority]
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}

// List returns all TODOs for a session in smart order (status, then
// priority, then most-recently-updated first).
func (s *Store) List(ctx context.Context, sessionID string) ([]Item, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	items, err := s.read(sessionID)
	if err != nil {
		return nil, err
	}
	sortSmart(items)
	return items, nil
}

// Create adds a new TODO and returns it with its generated ID/order/timestamps.
func (s *Store) Create(ctx context.Context, sessionID string, agentType AgentType, title, description string, priority Priority) (Item, error) {
	var item Item
	err := s.withLock(ctx, sessionID, func() error {
		items, err := s.read(sessionID)
		if err != nil {
			return err
		}
		if priority == "" {
			priority = PriorityMedium
		}
		now := time.Now()
		item = Item{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			AgentType:   agentType,
			Title:       title,
			Description: description,
			Status:      StatusPending,
			Priority:    priority,
			Order:       len(items),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		items = append(items, item)
		return s.write(sessionID, items)
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// Update mutates an existing TODO by ID. Fields are only applied when the
// corresponding pointer is non-nil. PreviousStatus is recorded automatically
// whenever Status changes.
func (s *Store) Update(ctx context.Context, sessionID, id string, status *Status, title, description *string, priority *Priority) (Item, error) {
	var updated Item
	err := s.withLock(ctx, sessionID, func() error {
		items, err := s.read(sessionID)
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].ID != id {
				continue
			}
			if status != nil && *status != items[i].Status {
				items[i].PreviousStatus = items[i].Status
				items[i].Status = *status
			}
			if title != nil {
				items[i].Title = *title
			}
			if description != nil {
				items[i].Description = *description
			}
			if priority != nil {
				items[i].Priority = *priority
			}
			items[i].UpdatedAt = time.Now()
			if err := s.write(sessionID, items); err != nil {
				return err
			}
			updated = items[i]
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

// Delete removes a TODO by ID and renumbers the remaining Order values.
func (s *Store) Delete(ctx context.Context, sessionID, id string) error {
	return s.withLock(ctx, sessionID, func() error {
		items, err := s.read(sessionID)
		if err != nil {
			return err
		}
		out := items[:0]
		found := false
		for _, it := range items {
			if it.ID == id {
				found = true
				continue
			}
			out = append(out, it)
		}
		if !found {
			return ErrNotFound
		}
		for i := range out {
			out[i].Order = i
		}
		return s.write(sessionID, out)
	})
}

// Reorder assigns a new Order to each listed ID, in the order given.
func (s *Store) Reorder(ctx context.Context, sessionID string, orderedIDs []string) error {
	return s.withLock(ctx, sessionID, func() error {
		items, err := s.read(sessionID)
		if err != nil {
			return err
		}
		pos := make(map[string]int, len(orderedIDs))
		for i, id := range orderedIDs {
			pos[id] = i
		}
		for i := range items {
			if p, ok := pos[items[i].ID]; ok {
				items[i].Order = p
				items[i].UpdatedAt = time.Now()
			}
		}
		return s.write(sessionID, items)
	})
}

// HasActive reports whether the session already has a pending or
// in-progress TODO for the given agent type, used by sub-agents to decide
// whether creating a new TODO should be skipped in favor of reusing one.
func (s *Store) HasActive(ctx context.Context, sessionID string, agentType AgentType) (bool, error) {
	items, err := s.List(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.AgentType == agentType && (it.Status == StatusPending || it.Status == StatusInProgress) {
			return true, nil
		}
	}
	return false, nil
}

// notFoundError is returned by Update/Delete when the ID doesn't exist.
type notFoundError struct{}

func (notFoundError) Error() string { return "todo not found" }

// ErrNotFound is returned by Update/Delete when the TODO ID doesn't exist.
var ErrNotFound error = notFoundError{}
