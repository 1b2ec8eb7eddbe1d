package models

// RecoveryState marks which network phase was in flight when the checkpoint was last written
type RecoveryState uint8

const (
	StateNormal      RecoveryState = 0
	StatePreNetworkA RecoveryState = 1 // startup announcement
	StatePreNetworkB RecoveryState = 2 // batch flush
)

func (s RecoveryState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StatePreNetworkA:
		return "PRE_NETWORK_A"
	case StatePreNetworkB:
		return "PRE_NETWORK_B"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the known states
func (s RecoveryState) Valid() bool {
	return s <= StatePreNetworkB
}

// Checkpoint is the small record that survives power loss and restarts
type Checkpoint struct {
	BootCount        uint32        `json:"boot_count"`
	ErrorFlag        bool          `json:"error_flag"`
	FirstBoot        bool          `json:"first_boot"`
	RecoveryState    RecoveryState `json:"recovery_state"`
	RecoveryAttempts uint32        `json:"recovery_attempts"`
}

// DefaultCheckpoint is what a freshly provisioned device loads
func DefaultCheckpoint() Checkpoint {
	return Checkpoint{FirstBoot: true, RecoveryState: StateNormal}
}
