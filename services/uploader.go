package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ruuvigate/models"

	"go.uber.org/zap"
)

// DocumentStore is the on-flash document set the uploader drains
type DocumentStore interface {
	List() ([]string, error)
	Read(name string) (*models.DeviceDocument, error)
	Remove(name string) error
	Quarantine(name string) error
}

// DocumentSink accepts one device document under a remote key
type DocumentSink interface {
	Upload(ctx context.Context, key string, doc *models.DeviceDocument) error
}

// UploaderConfig controls per-document retry and pacing
type UploaderConfig struct {
	Attempts      int
	RetryDelay    time.Duration
	WorkerTimeout time.Duration
	SettleDelay   time.Duration
}

// BatchUploader handles uploading every stored document and deleting the
// ones the remote store accepted
type BatchUploader struct {
	store   DocumentStore
	sink    DocumentSink
	cfg     UploaderConfig
	logger  *zap.Logger
	journal Journal
}

// NewBatchUploader creates a new batch uploader
func NewBatchUploader(store DocumentStore, sink DocumentSink, cfg UploaderConfig, journal Journal, logger *zap.Logger) *BatchUploader {
	return &BatchUploader{
		store:   store,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		journal: journal,
	}
}

// RemoteKey names the remote record for a document: "<day>_<tag token>"
func RemoteKey(doc *models.DeviceDocument) string {
	token := strings.ReplaceAll(doc.DeviceID, ":", "_")
	if id, err := models.ParseDeviceID(doc.DeviceID); err == nil {
		token = id.Token()
	}
	return doc.Day + "_" + token
}

// FlushAll uploads every stored document once. Each document is deleted
// right after the remote store accepts it; rejected documents stay for the
// next flush. A document only counts as sent once its local copy is gone.
// A failure never stops the remaining documents.
func (bu *BatchUploader) FlushAll(ctx context.Context) models.FlushReport {
	names, err := bu.store.List()
	if err != nil {
		bu.logger.Error("Failed to enumerate documents", zap.Error(err))
		bu.journalf("Flush aborted: cannot list documents: %v", err)
		return models.FlushReport{Outcome: models.OutcomeNoneSent}
	}

	report := models.FlushReport{Total: len(names)}
	if len(names) == 0 {
		report.Outcome = models.OutcomeNoDocuments
		bu.logger.Info("No documents to flush")
		return report
	}

	bu.logger.Info("Starting batch upload", zap.Int("documents", len(names)))

	for i, name := range names {
		if i > 0 && !sleepCtx(ctx, bu.cfg.SettleDelay) {
			report.Failed += len(names) - i
			break
		}

		if bu.flushOne(ctx, name) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	report.Outcome = models.ClassifyOutcome(report.Sent, report.Total)
	bu.logger.Info("Batch upload finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("total", report.Total))
	return report
}

func (bu *BatchUploader) flushOne(ctx context.Context, name string) bool {
	doc, err := bu.store.Read(name)
	if err != nil {
		bu.logger.Error("Unreadable document, quarantining",
			zap.String("document", name),
			zap.Error(err))
		if qerr := bu.store.Quarantine(name); qerr != nil {
			bu.logger.Error("Failed to quarantine document", zap.String("document", name), zap.Error(qerr))
		}
		bu.journalf("Quarantined unreadable document %s", name)
		return false
	}

	key := RemoteKey(doc)
	err = Retry(ctx, bu.logger, "upload "+key, bu.cfg.Attempts, bu.cfg.RetryDelay, func(ctx context.Context) error {
		return RunBounded(ctx, bu.cfg.WorkerTimeout, func(ctx context.Context) error {
			return bu.sink.Upload(ctx, key, doc)
		})
	})
	if err != nil {
		bu.logger.Error("Failed to upload document",
			zap.String("document", name),
			zap.String("key", key),
			zap.Int("readings", len(doc.Readings)),
			zap.Error(err))
		bu.journalf("Upload failed for %s: %v", key, err)
		return false
	}

	if err := bu.store.Remove(name); err != nil {
		// Counted as failed so the flush is not ALL_OK while the document is
		// still on flash. The next flush overwrites the same remote key.
		bu.logger.Error("Uploaded document could not be deleted",
			zap.String("document", name),
			zap.Error(err))
		bu.journalf("Uploaded %s but could not delete local copy: %v", key, err)
		return false
	}

	bu.logger.Info("Document uploaded",
		zap.String("document", name),
		zap.String("key", key),
		zap.Int("readings", len(doc.Readings)))
	return true
}

func (bu *BatchUploader) journalf(format string, args ...any) {
	if bu.journal != nil {
		bu.journal.Append(fmt.Sprintf(format, args...))
	}
}
