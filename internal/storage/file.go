// file.go - JSON file state store (one file per application id)

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
)

// FileStateStore keeps each state blob in <dir>/<appID>.json.
type FileStateStore struct {
	dir string
}

// NewFileStateStore creates the store; the directory is created on first save.
func NewFileStateStore(dir string) *FileStateStore {
	return &FileStateStore{dir: dir}
}

func (s *FileStateStore) path(appID string) (string, error) {
	if appID == "" || strings.ContainsAny(appID, `/\`) || appID == "." || appID == ".." {
		return "", fmt.Errorf("invalid app id %q", appID)
	}
	return filepath.Join(s.dir, appID+".json"), nil
}

// Load reads the blob. A missing file yields ErrStateNotFound.
func (s *FileStateStore) Load(ctx context.Context, appID string) (*model.AppState, error) {
	path, err := s.path(appID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var state model.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", path, err)
	}
	return &state, nil
}

// Save writes to a temp file in the same directory and renames it into
// place, so readers never see a partial blob.
func (s *FileStateStore) Save(ctx context.Context, appID string, state *model.AppState) error {
	path, err := s.path(appID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, appID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}
