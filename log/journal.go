package log

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Journal is a durable, size-bounded audit log kept on flash between
// cycles. Entries are synced before Append returns and survive until
// Clear is called after a successful drain to the notifier.
type Journal struct {
	path     string
	maxBytes int64
	mu       sync.Mutex
	logger   *zap.Logger
}

// journalFile opens the file for every write so trimming can replace it
type journalFile struct {
	j *Journal
}

func (f journalFile) Write(p []byte) (int, error) {
	if err := f.j.trimLocked(int64(len(p))); err != nil {
		return 0, err
	}
	file, err := os.OpenFile(f.j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := file.Write(p)
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (f journalFile) Sync() error { return nil }

// NewJournal opens (or creates) the journal at path
func NewJournal(path string, maxBytes int64) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j := &Journal{path: path, maxBytes: maxBytes}

	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "message",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), journalFile{j: j}, zap.InfoLevel)
	j.logger = zap.New(core)
	return j, nil
}

// Append writes one info entry
func (j *Journal) Append(msg string, fields ...zap.Field) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logger.Info(msg, fields...)
}

// Error writes one error entry
func (j *Journal) Error(msg string, fields ...zap.Field) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logger.Error(msg, fields...)
}

// Entries returns all journal lines, oldest first
func (j *Journal) Entries() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// Clear drops all entries
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

// trimLocked drops the oldest half of the journal when the next write
// would exceed maxBytes. Called with j.mu held.
func (j *Journal) trimLocked(incoming int64) error {
	if j.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size()+incoming <= j.maxBytes {
		return nil
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		return err
	}
	cut := len(data) / 2
	if i := bytes.IndexByte(data[cut:], '\n'); i >= 0 {
		cut += i + 1
	} else {
		cut = len(data)
	}
	tail := append([]byte("... journal truncated ...\n"), data[cut:]...)

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, tail, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, j.path)
}
