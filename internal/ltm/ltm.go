// Package ltm is the append-only long-term memory log: a single markdown
// file of timestamped entries that, when enabled, is prepended to every main
// loop run so durable facts survive across sessions.
package ltm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store appends entries to, and reads the full contents of, a single
// markdown file. One global mutex guards the writer since this is
// process-wide state, not per-session.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by path (created on first Append if missing).
func New(path string) *Store {
	return &Store{path: path}
}

// Append adds a new "### [timestamp] title" section with body underneath.
func (s *Store) Append(title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "\n### [%s] %s\n\n%s\n", time.Now().UTC().Format(time.RFC3339), title, strings.TrimSpace(body))
	return w.Flush()
}

// Load returns the full markdown contents, or empty string if the file
// doesn't exist yet.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
