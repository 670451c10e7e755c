package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one <id>.token file per operation in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted at it
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+tokenSuffix)
}

// Save writes the token through a temporary file and an atomic rename
func (s *FileStore) Save(_ context.Context, id, token string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("failed to commit checkpoint %s: %w", id, err)
	}
	return nil
}

// Load reads the token stored under id
func (s *FileStore) Load(_ context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	// #nosec G304 -- id is validated against idPattern
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	return string(data), nil
}

// Delete removes the checkpoint file
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	return nil
}

// List reads every checkpoint in the directory
func (s *FileStore) List(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tokenSuffix) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), tokenSuffix)
		if ValidateID(id) != nil {
			continue
		}
		token, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // deleted between ReadDir and Load
		}
		if err != nil {
			return nil, err
		}
		out[id] = token
	}
	return out, nil
}

// Close is a no-op
func (s *FileStore) Close() error { return nil }
