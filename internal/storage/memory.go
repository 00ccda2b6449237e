package storage

import (
	"context"
	"sort"
	"sync"

	"pairdex/internal/model"
)

// MemoryStore keeps state in process memory only. State is lost on exit.
type MemoryStore struct {
	mu      sync.Mutex
	pairs   map[string]model.Pair
	feeRate *uint32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pairs: make(map[string]model.Pair)}
}

func (s *MemoryStore) LoadPairs(ctx context.Context) ([]model.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Pair, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (s *MemoryStore) SavePair(ctx context.Context, pair model.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair.IsEmpty() {
		delete(s.pairs, pair.TokenID)
		return nil
	}
	s.pairs[pair.TokenID] = pair.Clone()
	return nil
}

func (s *MemoryStore) LoadFeeRate(ctx context.Context) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feeRate == nil {
		return 0, false, nil
	}
	return *s.feeRate, true, nil
}

func (s *MemoryStore) SaveFeeRate(ctx context.Context, feeRate uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeRate = &feeRate
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
