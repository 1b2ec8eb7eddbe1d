package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ruuvigate/log"
	"ruuvigate/models"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var checkpointBucket = []byte("checkpoint")

// BoltStore keeps the checkpoint in a single bbolt bucket. bbolt fsyncs
// on every committed write transaction.
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint bucket: %w", err)
	}
	return &BoltStore{db: db, logger: log.GetInstance()}, nil
}

func (s *BoltStore) Load() models.Checkpoint {
	var c models.Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointBucket)
		c = decode(func(key string) []byte {
			if b == nil {
				return nil
			}
			return b.Get([]byte(key))
		})
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to read checkpoint, using defaults", zap.Error(err))
		return models.DefaultCheckpoint()
	}
	return c
}

func (s *BoltStore) Save(c models.Checkpoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(checkpointBucket)
		if err != nil {
			return err
		}
		for k, v := range encode(c) {
			if err := b.Put([]byte(k), v); err != nil {
				return fmt.Errorf("put %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
