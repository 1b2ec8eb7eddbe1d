package models

// ScanCycleStatus tracks fan-in coverage during one collection cycle.
// Received is cleared at the start of every attempt; Covered keeps the
// union across attempts.
type ScanCycleStatus struct {
	Expected      int
	Received      map[DeviceID]struct{}
	ReceivedCount int
	AnyReceived   bool
	Covered       map[DeviceID]struct{}
	Attempts      int
	Dropped       int // readings lost to a full intake buffer
}

// NewScanCycleStatus creates the status for a registry of the given size
func NewScanCycleStatus(expected int) *ScanCycleStatus {
	return &ScanCycleStatus{
		Expected: expected,
		Received: make(map[DeviceID]struct{}),
		Covered:  make(map[DeviceID]struct{}),
	}
}

// ResetAttempt clears the per-attempt receipts
func (s *ScanCycleStatus) ResetAttempt() {
	s.Received = make(map[DeviceID]struct{})
	s.ReceivedCount = 0
	s.AnyReceived = false
}

// Mark records a receipt. It returns false when id was already seen in
// this attempt or an earlier one.
func (s *ScanCycleStatus) Mark(id DeviceID) bool {
	if _, ok := s.Covered[id]; ok {
		return false
	}
	s.Received[id] = struct{}{}
	s.Covered[id] = struct{}{}
	s.ReceivedCount = len(s.Received)
	s.AnyReceived = true
	return true
}

// Complete reports whether every registered device has been covered
func (s *ScanCycleStatus) Complete() bool {
	return len(s.Covered) >= s.Expected
}

// Missing returns the registry entries not covered yet
func (s *ScanCycleStatus) Missing(registry []DeviceID) []DeviceID {
	var out []DeviceID
	for _, id := range registry {
		if _, ok := s.Covered[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
