package booking

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// maxLine bounds a single JSONL record; transcripts of long calls can exceed
// bufio's default token size.
const maxLine = 4 << 20

// FileStore appends bookings to a JSON-lines file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("booking: file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("booking: file store: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, b Booking) error {
	if err := b.validate(); err != nil {
		return err
	}
	line, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("booking: file store: encode: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("booking: file store: open: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("booking: file store: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("booking: file store: close: %w", err)
	}
	return nil
}

// List implements [Store]. Malformed lines are skipped with a warning.
func (s *FileStore) List(_ context.Context, limit int) ([]Booking, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return []Booking{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("booking: file store: read: %w", err)
	}

	out := []Booking{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var b Booking
		if err := json.Unmarshal(line, &b); err != nil {
			slog.Warn("booking: skipping malformed record", "path", s.path, "line", n, "err", err)
			continue
		}
		out = append(out, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("booking: file store: scan: %w", err)
	}

	slices.SortStableFunc(out, func(a, b Booking) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements [Store] by checking that the directory exists.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("booking: file store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("booking: file store: %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

// Close implements [Store]. It is a no-op.
func (s *FileStore) Close() error { return nil }
