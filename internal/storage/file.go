package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"pairdex/internal/model"
)

// FileStore keeps the whole ledger state in one JSON snapshot file.
// Every save rewrites the snapshot through a temporary file and a rename.
type FileStore struct {
	Path string

	mu     sync.Mutex
	loaded bool
	state  snapshot
}

type snapshot struct {
	FeeRate   *uint32               `json:"fee_rate,omitempty"`
	Pairs     map[string]model.Pair `json:"pairs"`
	UpdatedAt string                `json:"updated_at"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) LoadPairs(ctx context.Context) ([]model.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(s.state.Pairs))
	for id := range s.state.Pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Pair, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.state.Pairs[id].Clone())
	}
	return out, nil
}

func (s *FileStore) SavePair(ctx context.Context, pair model.Pair) error {
	if pair.TokenID == "" {
		return fmt.Errorf("save pair: token id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	prev, had := s.state.Pairs[pair.TokenID]
	if pair.IsEmpty() {
		delete(s.state.Pairs, pair.TokenID)
	} else {
		s.state.Pairs[pair.TokenID] = pair.Clone()
	}
	if err := s.write(); err != nil {
		if had {
			s.state.Pairs[pair.TokenID] = prev
		} else {
			delete(s.state.Pairs, pair.TokenID)
		}
		return err
	}
	return nil
}

func (s *FileStore) LoadFeeRate(ctx context.Context) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, false, err
	}
	if s.state.FeeRate == nil {
		return 0, false, nil
	}
	return *s.state.FeeRate, true, nil
}

func (s *FileStore) SaveFeeRate(ctx context.Context, feeRate uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	prev := s.state.FeeRate
	s.state.FeeRate = &feeRate
	if err := s.write(); err != nil {
		s.state.FeeRate = prev
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}
	s.state = snapshot{Pairs: make(map[string]model.Pair)}
	if s.Path == "" {
		return fmt.Errorf("state file path required")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return fmt.Errorf("parse state: %w", err)
	}
	if s.state.Pairs == nil {
		s.state.Pairs = make(map[string]model.Pair)
	}
	for id, pair := range s.state.Pairs {
		if pair.TokenID != id {
			return fmt.Errorf("parse state: pair key %q holds token %q", id, pair.TokenID)
		}
	}
	s.loaded = true
	return nil
}

func (s *FileStore) write() error {
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	s.state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
