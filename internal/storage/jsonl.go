package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pairdex/internal/model"
)

const recentTransferIDs = 1024

// JsonlTransferSink journals settlement instructions to a JSONL file.
// A transfer whose ID was written recently is skipped, so retries never journal a payout twice.
type JsonlTransferSink struct {
	path string
	mu   sync.Mutex

	seen  map[string]struct{}
	order []string
}

func NewJsonlTransferSink(path string) *JsonlTransferSink {
	return &JsonlTransferSink{path: path, seen: make(map[string]struct{})}
}

// Transfer appends one transfer as a JSON line.
func (s *JsonlTransferSink) Transfer(ctx context.Context, transfer model.Transfer) error {
	return s.PutTransfers(ctx, []model.Transfer{transfer})
}

// PutTransfers appends a batch of transfers as JSON lines.
func (s *JsonlTransferSink) PutTransfers(ctx context.Context, transfers []model.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var ids []string
	for _, transfer := range transfers {
		if s.written(transfer.ID) {
			continue
		}
		ids = append(ids, transfer.ID)
		line, err := json.Marshal(transfer)
		if err != nil {
			return fmt.Errorf("marshal transfer: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write transfer: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	for _, id := range ids {
		s.remember(id)
	}
	// Flushed lines are committed; a failed sync must not make the caller write them again.
	_ = file.Sync()
	return nil
}

func (s *JsonlTransferSink) written(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.seen[id]
	return ok
}

func (s *JsonlTransferSink) remember(id string) {
	if id == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > recentTransferIDs {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
}

// ReadTransfers returns every journaled transfer in order. A missing file yields none.
func ReadTransfers(path string) ([]model.Transfer, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []model.Transfer
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var transfer model.Transfer
		if err := json.Unmarshal(scanner.Bytes(), &transfer); err != nil {
			return nil, fmt.Errorf("parse transfer line %d: %w", len(out)+1, err)
		}
		out = append(out, transfer)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}
