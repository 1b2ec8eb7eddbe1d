package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"ruuvigate/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]func() CheckpointStore {
	dir := t.TempDir()
	return map[string]func() CheckpointStore{
		"bolt": func() CheckpointStore {
			s, err := Open("bolt", filepath.Join(dir, "checkpoint.db"))
			require.NoError(t, err)
			return s
		},
		"badger": func() CheckpointStore {
			s, err := Open("badger", filepath.Join(dir, "checkpoint.badger"))
			require.NoError(t, err)
			return s
		},
		"memory": func() CheckpointStore {
			return NewMemoryStore()
		},
	}
}

func TestCheckpointStore_FreshLoadIsFirstBoot(t *testing.T) {
	for name, open := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			c := s.Load()
			assert.Equal(t, models.DefaultCheckpoint(), c)
			assert.True(t, c.FirstBoot)
			assert.Equal(t, models.StateNormal, c.RecoveryState)
		})
	}
}

func TestCheckpointStore_SaveLoad(t *testing.T) {
	want := models.Checkpoint{
		BootCount:        143,
		ErrorFlag:        true,
		FirstBoot:        false,
		RecoveryState:    models.StatePreNetworkB,
		RecoveryAttempts: 2,
	}
	for name, open := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			require.NoError(t, s.Save(want))
			assert.Equal(t, want, s.Load())
			require.NoError(t, s.Close())
		})
	}
}

func TestCheckpointStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	want := models.Checkpoint{BootCount: 7, RecoveryState: models.StatePreNetworkA}

	for _, backend := range []string{"bolt", "badger"} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(dir, backend)
			s, err := Open(backend, path)
			require.NoError(t, err)
			require.NoError(t, s.Save(want))
			require.NoError(t, s.Close())

			s, err = Open(backend, path)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, want, s.Load())
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("sqlite", filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestDecodeIgnoresUnknownRecoveryState(t *testing.T) {
	c := decode(func(key string) []byte {
		if key == keyRecoveryState {
			return []byte{9}
		}
		return nil
	})
	assert.Equal(t, models.StateNormal, c.RecoveryState)
}

func TestMemoryStoreSaveError(t *testing.T) {
	s := NewMemoryStore()
	s.SaveErr = errors.New("flash worn out")
	assert.Error(t, s.Save(models.Checkpoint{BootCount: 1}))
	assert.Equal(t, uint32(0), s.Load().BootCount)
	assert.Zero(t, s.Saves)
}
