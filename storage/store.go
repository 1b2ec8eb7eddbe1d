package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"ruuvigate/models"
)

// CheckpointStore persists the duty-cycle checkpoint.
// Load never fails: missing or unreadable records yield defaults.
// Save returns only once the record is durable.
type CheckpointStore interface {
	Load() models.Checkpoint
	Save(models.Checkpoint) error
	Close() error
}

var ErrUnknownBackend = errors.New("unknown checkpoint backend")

const (
	keyBootCount        = "boot_count"
	keyErrorFlag        = "error_flag"
	keyFirstBootDone    = "first_boot_done"
	keyRecoveryState    = "recovery_state"
	keyRecoveryAttempts = "recovery_attempts"
)

// Open returns the store for the named backend ("bolt" or "badger")
func Open(backend, path string) (CheckpointStore, error) {
	switch backend {
	case "bolt", "":
		return NewBoltStore(path)
	case "badger":
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// encode flattens a checkpoint into its persisted keys. FirstBoot is
// stored inverted so an empty store reads as a first boot.
func encode(c models.Checkpoint) map[string][]byte {
	return map[string][]byte{
		keyBootCount:        u32(c.BootCount),
		keyErrorFlag:        boolean(c.ErrorFlag),
		keyFirstBootDone:    boolean(!c.FirstBoot),
		keyRecoveryState:    {byte(c.RecoveryState)},
		keyRecoveryAttempts: u32(c.RecoveryAttempts),
	}
}

// decode rebuilds a checkpoint from whatever keys get returns; absent keys keep defaults
func decode(get func(key string) []byte) models.Checkpoint {
	c := models.DefaultCheckpoint()
	if v := get(keyBootCount); len(v) == 4 {
		c.BootCount = binary.BigEndian.Uint32(v)
	}
	if v := get(keyErrorFlag); len(v) == 1 {
		c.ErrorFlag = v[0] == 1
	}
	if v := get(keyFirstBootDone); len(v) == 1 {
		c.FirstBoot = v[0] != 1
	}
	if v := get(keyRecoveryState); len(v) == 1 {
		if s := models.RecoveryState(v[0]); s.Valid() {
			c.RecoveryState = s
		}
	}
	if v := get(keyRecoveryAttempts); len(v) == 4 {
		c.RecoveryAttempts = binary.BigEndian.Uint32(v)
	}
	return c
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func boolean(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}
