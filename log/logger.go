package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once           sync.Once
	loggerInstance *zap.Logger
	level          = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// newLogger builds the JSON stdout logger every gateway line goes through.
// Its level is shared through level so SetLevel applies after construction.
func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.Level = level
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.InitialFields = map[string]interface{}{"service": "ruuvigate"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	config.EncoderConfig.MessageKey = "message"
	// Sampling would drop repeated per-tag scan lines
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	return logger
}

// GetInstance returns the process-wide logger, building it on first use.
// Components that are handed a logger explicitly should prefer that one;
// this is for main and for stores opened before wiring.
func GetInstance() *zap.Logger {
	once.Do(func() {
		loggerInstance = newLogger()
	})
	return loggerInstance
}

// SetLevel changes the level of the shared logger; unknown names are ignored
func SetLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err == nil {
		level.SetLevel(l)
	}
}
