package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Official RAWv2 test vector: 24.3 C, 53.49 %
var rawv2Valid = []byte{
	0x05, 0x12, 0xFC, 0x53, 0x94, 0xC3, 0x7C, 0x00, 0x04, 0xFF, 0xFC, 0x04, 0x0C,
	0xAC, 0x36, 0x42, 0x00, 0xCD, 0xCB, 0xB8, 0x33, 0x4C, 0x88, 0x4F,
}

func TestDecodeRuuviRAWv2(t *testing.T) {
	s, err := DecodeRuuviRAWv2(rawv2Valid)
	require.NoError(t, err)
	assert.InDelta(t, 24.3, s.Temperature, 0.001)
	assert.InDelta(t, 53.49, s.Humidity, 0.001)
}

func TestDecodeRuuviRAWv2Negative(t *testing.T) {
	data := append([]byte(nil), rawv2Valid...)
	data[1], data[2] = 0xFC, 0x18 // -1000 * 0.005
	s, err := DecodeRuuviRAWv2(data)
	require.NoError(t, err)
	assert.InDelta(t, -5.0, s.Temperature, 0.001)
}

func TestDecodeRuuviRAWv2Rejects(t *testing.T) {
	short := rawv2Valid[:10]
	_, err := DecodeRuuviRAWv2(short)
	assert.Error(t, err)

	rawv3 := append([]byte(nil), rawv2Valid...)
	rawv3[0] = 0x03
	_, err = DecodeRuuviRAWv2(rawv3)
	assert.Error(t, err)

	invalid := append([]byte(nil), rawv2Valid...)
	invalid[1], invalid[2] = 0x80, 0x00
	_, err = DecodeRuuviRAWv2(invalid)
	assert.Error(t, err)
}
