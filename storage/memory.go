package storage

import (
	"sync"

	"ruuvigate/models"
)

// MemoryStore is a volatile CheckpointStore for tests and dry runs
type MemoryStore struct {
	mu      sync.Mutex
	cp      models.Checkpoint
	SaveErr error
	Saves   int
	History []models.Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cp: models.DefaultCheckpoint()}
}

// NewMemoryStoreWith starts from an existing checkpoint
func NewMemoryStoreWith(c models.Checkpoint) *MemoryStore {
	return &MemoryStore{cp: c}
}

func (s *MemoryStore) Load() models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp
}

func (s *MemoryStore) Save(c models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.cp = c
	s.Saves++
	s.History = append(s.History, c)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
