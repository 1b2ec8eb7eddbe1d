package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ruuvigate/models"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	documentPrefix   = "sensor_"
	documentSuffix   = ".json"
	quarantineSuffix = ".corrupt"
	tempSuffix       = ".tmp"
)

// Journal is the durable audit log the cycle drains to the notifier
type Journal interface {
	Append(msg string, fields ...zap.Field)
}

// Accumulator keeps one JSON document per tag on flash and appends every
// recorded reading to it. Documents are rewritten whole and replaced
// atomically so a power cut leaves either the old or the new version.
type Accumulator struct {
	dir     string
	loc     *time.Location
	logger  *zap.Logger
	journal Journal
}

// NewAccumulator creates the document directory and removes temp files left by an interrupted write
func NewAccumulator(dir string, loc *time.Location, journal Journal, logger *zap.Logger) (*Accumulator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	a := &Accumulator{dir: dir, loc: loc, logger: logger, journal: journal}

	stale, _ := filepath.Glob(filepath.Join(dir, "*"+tempSuffix))
	for _, p := range stale {
		logger.Warn("Removing interrupted document write", zap.String("path", p))
		_ = os.Remove(p)
	}
	return a, nil
}

// DocumentName is the file name that holds id's readings
func (a *Accumulator) DocumentName(id models.DeviceID) string {
	return documentPrefix + id.Token() + documentSuffix
}

// Record appends one reading to the tag's document, creating it when absent
// or unreadable. The battery snapshot always overwrites the stored one.
func (a *Accumulator) Record(m models.Measurement, battery models.BatterySnapshot) error {
	name := a.DocumentName(m.DeviceID)

	doc, err := a.Read(name)
	if err != nil && !os.IsNotExist(err) {
		a.logger.Warn("Discarding unreadable document",
			zap.String("document", name),
			zap.Error(err))
		a.journalf("Discarded unreadable document %s", name)
		doc = nil
	}
	if doc == nil {
		doc = &models.DeviceDocument{
			DeviceID: m.DeviceID.String(),
			Day:      m.Reading.Timestamp.In(a.loc).Format("2006-01-02"),
		}
	}

	doc.BatteryMV = battery.VoltageMV
	doc.BatteryLevel = battery.Level
	doc.Readings = append(doc.Readings, models.DocumentReading{
		Temperature: m.Reading.Temperature,
		Humidity:    m.Reading.Humidity,
		Timestamp:   m.Reading.Timestamp,
	})

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}
	if err := a.writeAtomic(name, data); err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}

	a.logger.Debug("Reading stored",
		zap.String("document", name),
		zap.Int("readings", len(doc.Readings)))
	return nil
}

// List returns document names in a stable order
func (a *Accumulator) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, documentPrefix) || !strings.HasSuffix(n, documentSuffix) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Read loads and parses a document. A missing file returns an os.IsNotExist error.
func (a *Accumulator) Read(name string) (*models.DeviceDocument, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return nil, err
	}
	var doc models.DeviceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if doc.DeviceID == "" || doc.Day == "" {
		return nil, fmt.Errorf("parse %s: missing header", name)
	}
	return &doc, nil
}

// ReadRaw returns the stored bytes unchanged
func (a *Accumulator) ReadRaw(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(a.dir, name))
}

// Remove deletes a document after it has been uploaded
func (a *Accumulator) Remove(name string) error {
	if err := os.Remove(filepath.Join(a.dir, name)); err != nil {
		return err
	}
	return syncDir(a.dir)
}

// Quarantine moves an unparsable document out of the upload set
func (a *Accumulator) Quarantine(name string) error {
	src := filepath.Join(a.dir, name)
	if err := os.Rename(src, src+quarantineSuffix); err != nil {
		return err
	}
	return syncDir(a.dir)
}

func (a *Accumulator) writeAtomic(name string, data []byte) error {
	final := filepath.Join(a.dir, name)
	tmp := final + tempSuffix

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(a.dir)
}

func (a *Accumulator) journalf(format string, args ...any) {
	if a.journal != nil {
		a.journal.Append(fmt.Sprintf(format, args...))
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
