package storage

import (
	"errors"
	"fmt"

	"ruuvigate/log"
	"ruuvigate/models"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerPrefix = "checkpoint/"

// BadgerStore is the alternative checkpoint backend
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1)
	// Keep memory low on the gateway
	opts.BlockCacheSize = 1 << 20
	opts.IndexCacheSize = 1 << 20
	opts.MemTableSize = 4 << 20
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: log.GetInstance()}, nil
}

func (s *BadgerStore) Load() models.Checkpoint {
	values := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		for k := range encode(models.Checkpoint{}) {
			item, err := txn.Get([]byte(badgerPrefix + k))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values[k] = v
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to read checkpoint, using defaults", zap.Error(err))
		return models.DefaultCheckpoint()
	}
	return decode(func(key string) []byte { return values[key] })
}

func (s *BadgerStore) Save(c models.Checkpoint) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for k, v := range encode(c) {
			if err := txn.Set([]byte(badgerPrefix+k), v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Sync()
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
