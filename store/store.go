package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists the State document. Save must be atomic: a failed or
// interrupted save leaves the previous snapshot readable.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// InitFunc builds the document used when none exists yet.
type InitFunc func() *State

func initial(fn InitFunc) *State {
	if fn == nil {
		return Defaults()
	}
	s := fn()
	s.Normalize()
	return s
}

// FileStore keeps the document in a JSON file.
type FileStore struct {
	Path    string
	Initial InitFunc
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string, init InitFunc) *FileStore {
	return &FileStore{Path: path, Initial: init}
}

// Load reads the file. A missing file is created from the initial document.
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		s := initial(f.Initial)
		slog.Info("state file not found; creating", slog.String("path", f.Path))
		if err := f.Save(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return Decode(b)
}

// Save writes a temp file next to the target and renames it into place.
func (f *FileStore) Save(_ context.Context, s *State) error {
	b, err := Encode(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
