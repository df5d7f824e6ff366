package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// FileStore persists snapshots as JSON files under a directory, one
// file per origin and area. Writes go through a temp file and rename
// so a crash never leaves a half-written snapshot behind.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a file-backed snapshot store rooted at dir.
// The directory is created if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mirror: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save persists a snapshot, replacing any previous one.
func (f *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("mirror: marshal snapshot: %w", err)
	}

	path := f.path(snap.Origin, snap.Area)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("mirror: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mirror: rename snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot. Returns (nil, nil) if none exists.
func (f *FileStore) Load(ctx context.Context, origin string, area storage.Area) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrStoreClosed{}
	}

	data, err := os.ReadFile(f.path(origin, area))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror: read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("mirror: parse snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes a snapshot.
func (f *FileStore) Delete(ctx context.Context, origin string, area storage.Area) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed{}
	}

	err := os.Remove(f.path(origin, area))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("mirror: delete snapshot: %w", err)
	}
	return nil
}

// Close marks the store as closed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Dir returns the store's directory, for testing purposes.
func (f *FileStore) Dir() string {
	return f.dir
}

// path maps an origin and area to a filename. Origins contain
// characters that are hostile to filesystems, so they are escaped.
func (f *FileStore) path(origin string, area storage.Area) string {
	name := fmt.Sprintf("%s_%s.json", url.QueryEscape(origin), strings.ToLower(area.String()))
	return filepath.Join(f.dir, name)
}
