package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceID(t *testing.T) {
	id, err := ParseDeviceID("db:c3:58:d9:03:70")
	require.NoError(t, err)
	assert.Equal(t, "DB:C3:58:D9:03:70", id.String())
	assert.Equal(t, "DB_C3_58_D9_03_70", id.Token())

	again, err := ParseDeviceID(id.Token())
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestParseDeviceIDRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "DB:C3:58", "ZZ:C3:58:D9:03:70", "DB:C3:58:D9:03:70:11"} {
		_, err := ParseDeviceID(in)
		assert.Error(t, err, in)
	}
}

func TestClassifyOutcome(t *testing.T) {
	assert.Equal(t, OutcomeNoDocuments, ClassifyOutcome(0, 0))
	assert.Equal(t, OutcomeAllOK, ClassifyOutcome(3, 3))
	assert.Equal(t, OutcomePartial, ClassifyOutcome(2, 3))
	assert.Equal(t, OutcomeNoneSent, ClassifyOutcome(0, 3))
}

func TestScanCycleStatusDedup(t *testing.T) {
	a := MustParseDeviceID("AA:AA:AA:AA:AA:01")
	b := MustParseDeviceID("AA:AA:AA:AA:AA:02")
	s := NewScanCycleStatus(2)

	assert.True(t, s.Mark(a))
	assert.False(t, s.Mark(a))
	assert.Equal(t, 1, s.ReceivedCount)
	assert.False(t, s.Complete())

	s.ResetAttempt()
	assert.Equal(t, 0, s.ReceivedCount)
	assert.False(t, s.AnyReceived)
	assert.False(t, s.Mark(a), "covered in an earlier attempt")
	assert.True(t, s.Mark(b))
	assert.True(t, s.Complete())
	assert.Empty(t, s.Missing([]DeviceID{a, b}))
}

func TestRecoveryStateString(t *testing.T) {
	assert.Equal(t, "PRE_NETWORK_B", StatePreNetworkB.String())
	assert.False(t, RecoveryState(7).Valid())
}
