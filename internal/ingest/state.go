package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// StateStore persists the last applied stream position.
type StateStore interface {
	Load(ctx context.Context) (model.Position, bool, error)
	Save(ctx context.Context, pos model.Position) error
}

// FileStateStore keeps the position as a JSON document at Path. Saves replace
// the file atomically.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) Load(context.Context) (model.Position, bool, error) {
	if s == nil || s.Path == "" {
		return model.Position{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Position{}, false, nil
	}
	if err != nil {
		return model.Position{}, false, fmt.Errorf("read state %s: %w", s.Path, err)
	}
	var pos model.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return model.Position{}, false, fmt.Errorf("decode state %s: %w", s.Path, err)
	}
	return pos, true, nil
}

func (s *FileStateStore) Save(_ context.Context, pos model.Position) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path)
}

// DefaultStateName is the position row used by the aggregate command.
const DefaultStateName = "stake-aggregator"

// DBStateStore keeps the position in the entity store, in the same row the
// aggregator advances when it tracks the stream.
type DBStateStore struct {
	Store storage.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (model.Position, bool, error) {
	if s == nil || s.Store == nil {
		return model.Position{}, false, nil
	}
	return storage.LoadPosition(ctx, s.Store, s.name())
}

func (s *DBStateStore) Save(ctx context.Context, pos model.Position) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return storage.SavePosition(ctx, s.Store, s.name(), pos)
}

func (s *DBStateStore) name() string {
	if s.Name == "" {
		return DefaultStateName
	}
	return s.Name
}
