// Package filestore is the blob cache large tool results and attachments
// spill into, so the transcript and model context only ever carry a short
// file_id reference instead of megabytes of inline payload. Every stored
// payload gets a new random file_id; identical payloads are not deduplicated.
package filestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one line of the append-only index: a file_id to its on-disk path
// and declared MIME type.
type Entry struct {
	FileID    string    `json:"file_id"`
	Path      string    `json:"path"`
	MIMEType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a directory of opaque blobs plus a JSONL append-only index.
type Store struct {
	dir string

	mu    sync.Mutex
	index map[string]Entry
}

// New returns a Store rooted at dir, replaying its index file if present.
func New(dir string) (*Store, error) {
	s := &Store{dir: dir, index: make(map[string]Entry)}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, "index.jsonl") }

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			break
		}
		s.index[e.FileID] = e
	}
	return nil
}

func (s *Store) appendIndex(e Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.indexPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	return enc.Encode(e)
}

// CacheBase64 decodes a base64 payload and stores it under a new file_id.
func (s *Store) CacheBase64(ctx context.Context, data string, mimeType string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return s.cacheBytes(raw, mimeType)
}

// CacheText stores a plain-text payload under a new file_id.
func (s *Store) CacheText(ctx context.Context, text string) (string, error) {
	return s.cacheBytes([]byte(text), "text/plain")
}

func (s *Store) cacheBytes(raw []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, id+".blob")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	entry := Entry{FileID: id, Path: path, MIMEType: mimeType, CreatedAt: time.Now()}
	s.index[id] = entry
	if err := s.appendIndex(entry); err != nil {
		return "", err
	}
	return id, nil
}

// GetBytes returns the raw bytes for a file_id.
func (s *Store) GetBytes(ctx context.Context, fileID string) ([]byte, error) {
	s.mu.Lock()
	entry, ok := s.index[fileID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("file_id not found: %s", fileID)
	}
	return os.ReadFile(entry.Path)
}

// GetText returns the bytes for a file_id decoded as UTF-8 text.
func (s *Store) GetText(ctx context.Context, fileID string) (string, error) {
	b, err := s.GetBytes(ctx, fileID)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetImageDataURL returns a data: URL embedding the cached image, suitable
// for a content part of kind "image".
func (s *Store) GetImageDataURL(ctx context.Context, fileID string) (string, error) {
	s.mu.Lock()
	entry, ok := s.index[fileID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("file_id not found: %s", fileID)
	}
	raw, err := os.ReadFile(entry.Path)
	if err != nil {
		return "", err
	}
	mt := entry.MIMEType
	if mt == "" {
		mt = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mt, base64.StdEncoding.EncodeToString(raw)), nil
}

// GetPath returns the on-disk path backing a file_id, for tools that need a
// real filesystem path (e.g. handing a screenshot to an external process).
func (s *Store) GetPath(ctx context.Context, fileID string) (string, error) {
	s.mu.Lock()
	entry, ok := s.index[fileID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("file_id not found: %s", fileID)
	}
	return entry.Path, nil
}
