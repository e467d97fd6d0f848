package output

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"pruneware/config"
	"pruneware/inventory"
	"pruneware/logger"
	"pruneware/systeminfo"
	"pruneware/uninstall"
)

const SchemaVersion = "1.0.0"

const (
	RecordSystemInfo      = "system_info"
	RecordSoftware        = "software"
	RecordUninstallResult = "uninstall_result"
	RecordBatch           = "batch"
)

// Envelope wraps every line written to the NDJSON output.
type Envelope struct {
	RecordType    string      `json:"record_type"`
	SchemaVersion string      `json:"schema_version"`
	Timestamp     string      `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

type BatchSummary struct {
	Total          int       `json:"total"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	Cancelled      bool      `json:"cancelled"`
	RebootRequired bool      `json:"reboot_required"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
}

type resultRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version,omitempty"`
	Publisher      string `json:"publisher,omitempty"`
	Source         string `json:"source"`
	Status         string `json:"status"`
	Success        bool   `json:"success"`
	ExitCode       int    `json:"exit_code"`
	Method         string `json:"method"`
	Command        string `json:"command,omitempty"`
	Error          string `json:"error,omitempty"`
	Stderr         string `json:"stderr,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	CompletedAt    string `json:"completed_at"`
	RebootRequired bool   `json:"reboot_required,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

type Writer struct {
	file  *os.File
	buf   *bufio.Writer
	mu    sync.Mutex
	cfg   *config.Config
	otel  *otelLogger
	count map[string]int
	now   func() time.Time
}

func New(cfg *config.Config, sysInfo *systeminfo.SystemInfo) (*Writer, error) {
	if cfg == nil || cfg.OutputFileName == "" {
		return nil, fmt.Errorf("output file name is required")
	}
	f, err := os.OpenFile(cfg.OutputFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		file:  f,
		buf:   bufio.NewWriterSize(f, 256*1024),
		cfg:   cfg,
		count: map[string]int{},
		now:   time.Now,
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if sysInfo != nil {
		w.write(RecordSystemInfo, sysInfo)
	}
	return w, nil
}

func (w *Writer) WriteSoftware(entries []inventory.SoftwareEntry) {
	for i := range entries {
		w.write(RecordSoftware, entries[i])
	}
}

// WriteResult matches uninstall.OrchestratorOptions.OnResult.
func (w *Writer) WriteResult(r uninstall.Result) {
	w.write(RecordUninstallResult, newResultRecord(r))
}

func (w *Writer) WriteBatch(b *uninstall.BatchResult) {
	if b == nil {
		return
	}
	w.write(RecordBatch, BatchSummary{
		Total:          b.Total(),
		Succeeded:      b.Succeeded(),
		Failed:         b.Failed(),
		Cancelled:      b.Cancelled,
		RebootRequired: b.RebootRequired(),
		StartedAt:      b.StartedAt,
		DurationMS:     b.Duration.Milliseconds(),
	})
}

// Count reports how many records of recordType were written.
func (w *Writer) Count(recordType string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count[recordType]
}

func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf != nil {
		_ = w.buf.Flush()
	}
	if w.file != nil {
		_ = w.file.Sync()
		_ = w.file.Close()
		w.file = nil
	}
	if w.otel != nil {
		w.otel.Shutdown()
	}
}

func (w *Writer) write(recordType string, payload interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	env := Envelope{
		RecordType:    recordType,
		SchemaVersion: SchemaVersion,
		Timestamp:     w.now().UTC().Format(time.RFC3339),
		Payload:       payload,
	}
	if err := encodeRecord(w.buf, env); err != nil {
		logger.Warnf("Failed to write %s record: %v", recordType, err)
		return
	}
	_ = w.buf.Flush()
	w.count[recordType]++
	if w.otel != nil {
		w.otel.Emit(recordType, payload)
	}
}

func newResultRecord(r uninstall.Result) resultRecord {
	return resultRecord{
		ID:             r.Entry.ID,
		Name:           r.Entry.Name,
		Version:        r.Entry.Version,
		Publisher:      r.Entry.Publisher,
		Source:         string(r.Entry.Source),
		Status:         r.Status(),
		Success:        r.Success,
		ExitCode:       r.ExitCode,
		Method:         string(r.Method),
		Command:        r.Command,
		Error:          r.Error,
		Stderr:         r.Stderr,
		DurationMS:     r.Duration.Milliseconds(),
		CompletedAt:    r.CompletedAt.UTC().Format(time.RFC3339),
		RebootRequired: r.RebootRequired,
		DryRun:         r.DryRun,
	}
}
