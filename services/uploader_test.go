package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ruuvigate/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var tagC = models.MustParseDeviceID("AA:AA:AA:AA:AA:03")

// fakeSink rejects any key listed in reject and records accepted uploads
type fakeSink struct {
	mu       sync.Mutex
	reject   map[string]bool
	block    bool
	accepted map[string]*models.DeviceDocument
	calls    int
}

func (s *fakeSink) Upload(ctx context.Context, key string, doc *models.DeviceDocument) error {
	s.mu.Lock()
	s.calls++
	block := s.block
	rejected := s.reject[key]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if rejected {
		return errors.New("permission denied")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted == nil {
		s.accepted = make(map[string]*models.DeviceDocument)
	}
	s.accepted[key] = doc
	return nil
}

func testUploaderConfig() UploaderConfig {
	return UploaderConfig{
		Attempts:      3,
		RetryDelay:    time.Millisecond,
		WorkerTimeout: 50 * time.Millisecond,
		SettleDelay:   time.Millisecond,
	}
}

func seedDocuments(t *testing.T, acc *Accumulator, ids ...models.DeviceID) {
	t.Helper()
	ts := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	for _, id := range ids {
		require.NoError(t, acc.Record(measurementAt(id, 20, ts), models.BatterySnapshot{VoltageMV: 3700, Level: 53}))
	}
}

func TestRemoteKey(t *testing.T) {
	doc := &models.DeviceDocument{DeviceID: "DB:C3:58:D9:03:70", Day: "2024-03-09"}
	assert.Equal(t, "2024-03-09_DB_C3_58_D9_03_70", RemoteKey(doc))
}

func TestBatchUploader_AllOK(t *testing.T) {
	acc, _, _ := newTestAccumulator(t)
	seedDocuments(t, acc, tagA, tagB)
	sink := &fakeSink{}

	report := NewBatchUploader(acc, sink, testUploaderConfig(), nil, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.FlushReport{Outcome: models.OutcomeAllOK, Total: 2, Sent: 2}, report)
	names, err := acc.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Contains(t, sink.accepted, "2024-03-09_AA_AA_AA_AA_AA_01")
	assert.Len(t, sink.accepted["2024-03-09_AA_AA_AA_AA_AA_02"].Readings, 1)
}

func TestBatchUploader_PartialKeepsRejectedDocument(t *testing.T) {
	acc, _, j := newTestAccumulator(t)
	seedDocuments(t, acc, tagA, tagB, tagC)
	sink := &fakeSink{reject: map[string]bool{"2024-03-09_AA_AA_AA_AA_AA_02": true}}

	report := NewBatchUploader(acc, sink, testUploaderConfig(), j, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.OutcomePartial, report.Outcome)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Total)

	names, err := acc.List()
	require.NoError(t, err)
	assert.Equal(t, []string{acc.DocumentName(tagB)}, names)

	doc, err := acc.Read(acc.DocumentName(tagB))
	require.NoError(t, err)
	assert.Len(t, doc.Readings, 1, "rejected document left intact")
	assert.Equal(t, 1+3+1, sink.calls, "rejected document retried")
	assert.NotEmpty(t, j.entries)
}

// stuckStore refuses to delete the named document
type stuckStore struct {
	*Accumulator
	stuck string
}

func (s stuckStore) Remove(name string) error {
	if name == s.stuck {
		return errors.New("read-only file system")
	}
	return s.Accumulator.Remove(name)
}

func TestBatchUploader_UndeletedDocumentIsNotSent(t *testing.T) {
	acc, _, j := newTestAccumulator(t)
	seedDocuments(t, acc, tagA, tagB)
	store := stuckStore{Accumulator: acc, stuck: acc.DocumentName(tagA)}
	sink := &fakeSink{}

	report := NewBatchUploader(store, sink, testUploaderConfig(), j, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.OutcomePartial, report.Outcome)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, sink.accepted, "2024-03-09_AA_AA_AA_AA_AA_01", "remote copy still written")

	names, err := acc.List()
	require.NoError(t, err)
	assert.Equal(t, []string{acc.DocumentName(tagA)}, names)
	assert.NotEmpty(t, j.entries)
}

func TestBatchUploader_NoneSent(t *testing.T) {
	acc, _, _ := newTestAccumulator(t)
	seedDocuments(t, acc, tagA, tagB)
	sink := &fakeSink{reject: map[string]bool{
		"2024-03-09_AA_AA_AA_AA_AA_01": true,
		"2024-03-09_AA_AA_AA_AA_AA_02": true,
	}}

	report := NewBatchUploader(acc, sink, testUploaderConfig(), nil, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.OutcomeNoneSent, report.Outcome)
	names, _ := acc.List()
	assert.Len(t, names, 2)
}

func TestBatchUploader_NoDocuments(t *testing.T) {
	acc, _, _ := newTestAccumulator(t)
	sink := &fakeSink{}

	report := NewBatchUploader(acc, sink, testUploaderConfig(), nil, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.OutcomeNoDocuments, report.Outcome)
	assert.Zero(t, sink.calls)
}

func TestBatchUploader_QuarantinesCorruptDocument(t *testing.T) {
	acc, dir, _ := newTestAccumulator(t)
	seedDocuments(t, acc, tagA)
	bad := acc.DocumentName(tagB)
	require.NoError(t, os.WriteFile(filepath.Join(dir, bad), []byte("{garbage"), 0o644))
	sink := &fakeSink{}

	report := NewBatchUploader(acc, sink, testUploaderConfig(), nil, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.OutcomePartial, report.Outcome)
	assert.Equal(t, 1, report.Failed)
	assert.FileExists(t, filepath.Join(dir, bad+".corrupt"))
	names, _ := acc.List()
	assert.Empty(t, names)
}

func TestBatchUploader_WorkerTimeoutCountsAsFailure(t *testing.T) {
	acc, _, _ := newTestAccumulator(t)
	seedDocuments(t, acc, tagA)
	sink := &fakeSink{block: true}
	cfg := testUploaderConfig()
	cfg.Attempts = 2

	start := time.Now()
	report := NewBatchUploader(acc, sink, cfg, nil, zap.NewNop()).FlushAll(context.Background())

	assert.Equal(t, models.OutcomeNoneSent, report.Outcome)
	assert.Less(t, time.Since(start), time.Second)
	names, _ := acc.List()
	assert.Len(t, names, 1)
}
