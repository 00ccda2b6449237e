// Package badger stores pair state in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"pairdex/internal/model"
)

var (
	pairPrefix = []byte("pair/")
	feeRateKey = []byte("setting/fee_rate")
)

// Store is a badger-backed pair state store.
type Store struct {
	db     *badgerdb.DB
	logger *zap.Logger
}

// Open opens the database in dir. An empty dir opens an in-memory database.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}
	logger.Info("badger store opened", zap.String("dir", dir), zap.Bool("in_memory", dir == ""))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func pairKey(tokenID string) []byte {
	return append(append([]byte{}, pairPrefix...), tokenID...)
}

// LoadPairs scans every pair key.
func (s *Store) LoadPairs(ctx context.Context) ([]model.Pair, error) {
	var out []model.Pair
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(pairPrefix); it.ValidForPrefix(pairPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var pair model.Pair
			if err := json.Unmarshal(data, &pair); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			out = append(out, pair)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SavePair writes a pair. Empty pairs are deleted.
func (s *Store) SavePair(ctx context.Context, pair model.Pair) error {
	if pair.TokenID == "" {
		return fmt.Errorf("token id required")
	}
	key := pairKey(pair.TokenID)
	if pair.IsEmpty() {
		return s.db.Update(func(txn *badgerdb.Txn) error {
			return txn.Delete(key)
		})
	}
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode pair: %w", err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Store) LoadFeeRate(ctx context.Context) (uint32, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(feeRateKey)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	fee, err := strconv.ParseUint(string(value), 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parse fee rate %q: %w", value, err)
	}
	return uint32(fee), true, nil
}

func (s *Store) SaveFeeRate(ctx context.Context, feeRate uint32) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(feeRateKey, []byte(strconv.FormatUint(uint64(feeRate), 10)))
	})
}
