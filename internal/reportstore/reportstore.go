// Package reportstore writes the markdown completion reports sub-agents
// produce when they finish a run, one file per report under a per-kind,
// per-day directory tree.
package reportstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Report is the structured content behind a saved report's markdown sections.
type Report struct {
	ReportID        string         `json:"report_id"`
	CreatedAt       time.Time      `json:"created_at"`
	TaskDescription string         `json:"task_description"`
	Summary         string         `json:"summary"`
	TodosSnapshot   []string       `json:"todos_snapshot,omitempty"`
	SearchResults   string         `json:"search_results,omitempty"`
	KeyFindings     []string       `json:"key_findings,omitempty"`
	Artifacts       []string       `json:"artifacts,omitempty"`
	Iterations      int            `json:"iterations"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// DistLock coordinates a per-report critical section across multiple
// agentd/agent processes sharing one Store directory. Mirrors
// todostore.DistLock; kept as a separate type so reportstore doesn't import
// todostore just for an interface.
type DistLock interface {
	Lock(ctx context.Context, name string) (release func(), err error)
}

// Store writes/reads reports under dir/<kind>/<YYYY-MM-DD>/<report_id>.md.
type Store struct {
	dir string
	mu  sync.Mutex

	distLock DistLock
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithDistLock attaches a cross-process lock (e.g. todostore.RedisDistLock,
// which satisfies this same interface) so multiple agent processes sharing
// dir don't race writing the same report_id.
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

// NewReportID builds the report_id format the rest of the system expects:
// YYYYMMDD_HHMMSS_<8 hex chars derived from the task description>.
func NewReportID(now time.Time, taskDescription string) string {
	sum := md5.Sum([]byte(taskDescription))
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8])
}

func (s *Store) dayDir(kind string, day time.Time) string {
	return filepath.Join(s.dir, kind, day.Format("2006-01-02"))
}

func (s *Store) pathFor(kind string, day time.Time, reportID string) string {
	return filepath.Join(s.dayDir(kind, day), reportID+".md")
}

// Save renders the report to markdown and writes it under the kind/day tree.
// report_id already uniquely identifies the write target (timestamp plus a
// hash of the task description), so the distributed lock here only guards
// against two processes racing os.MkdirAll/WriteFile for the exact same id,
// not a read-modify-write hazard like TodoStore's.
func (s *Store) Save(ctx context.Context, kind string, report Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.distLock != nil {
		release, err := s.distLock.Lock(ctx, kind+"/"+report.ReportID)
		if err != nil {
			return "", fmt.Errorf("acquire distributed lock for report %s: %w", report.ReportID, err)
		}
		defer release()
	}

	dir := s.dayDir(kind, report.CreatedAt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := s.pathFor(kind, report.CreatedAt, report.ReportID)
	if err := os.WriteFile(path, []byte(render(report)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func render(r Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Report %s\n\n", r.ReportID)
	fmt.Fprintf(&sb, "**Task:** %s\n\n", r.TaskDescription)
	fmt.Fprintf(&sb, "**Created:** %s\n\n", r.CreatedAt.Format(time.RFC3339))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(r.Summary)
	sb.WriteString("\n\n")

	sb.WriteString("## TODO execution record\n\n")
	if len(r.TodosSnapshot) == 0 {
		sb.WriteString("(none)\n\n")
	} else {
		for _, t := range r.TodosSnapshot {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Detailed search results\n\n")
	if r.SearchResults == "" {
		sb.WriteString("(none)\n\n")
	} else {
		sb.WriteString(r.SearchResults)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Key findings\n\n")
	if len(r.KeyFindings) == 0 {
		sb.WriteString("(none)\n\n")
	} else {
		for _, f := range r.KeyFindings {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Artifacts\n\n")
	if len(r.Artifacts) == 0 {
		sb.WriteString("(none)\n\n")
	} else {
		for _, a := range r.Artifacts {
			fmt.Fprintf(&sb, "- %s\n", a)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Metadata\n\n```json\n")
	meta, _ := json.MarshalIndent(r.Metadata, "", "  ")
	sb.Write(meta)
	sb.WriteString("\n```\n")

	return sb.String()
}

// Read loads a single report's raw markdown by kind/day/report_id.
func (s *Store) Read(ctx context.Context, kind string, day time.Time, reportID string) (string, error) {
	data, err := os.ReadFile(s.pathFor(kind, day, reportID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns the report_ids under kind/day, most recent first.
func (s *Store) List(ctx context.Context, kind string, day time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dayDir(kind, day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Delete removes a single report file.
func (s *Store) Delete(ctx context.Context, kind string, day time.Time, reportID string) error {
	return os.Remove(s.pathFor(kind, day, reportID))
}
