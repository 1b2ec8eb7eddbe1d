package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetInstanceIsShared(t *testing.T) {
	assert.Same(t, GetInstance(), GetInstance())
}

func TestSetLevel(t *testing.T) {
	defer level.SetLevel(zap.InfoLevel)

	SetLevel("debug")
	assert.True(t, GetInstance().Core().Enabled(zap.DebugLevel))

	SetLevel("warn")
	assert.False(t, GetInstance().Core().Enabled(zap.InfoLevel))

	SetLevel("loud")
	assert.Equal(t, zap.WarnLevel, level.Level(), "unknown level ignored")
}
