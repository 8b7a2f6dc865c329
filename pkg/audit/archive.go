package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// ObjectWriter stores archive objects. storage.S3Client satisfies it.
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// ArchiveConfig configures the Archiver
type ArchiveConfig struct {
	Prefix   string // Key prefix inside the bucket
	PageSize int    // Records per Query call
}

// ArchiveResult describes one archived day
type ArchiveResult struct {
	Day     time.Time `json:"day"`
	Key     string    `json:"key"`
	Records int       `json:"records"`
	Skipped bool      `json:"skipped"` // No records, nothing uploaded
}

// ErrDayNotClosed is returned when archiving today or a future day
var ErrDayNotClosed = errors.New("day is not closed yet")

// Archiver copies one UTC day of records into a single NDJSON object.
// It never deletes; retention is handled outside this service.
type Archiver struct {
	querier Querier
	objects ObjectWriter
	cfg     ArchiveConfig
	logger  *observability.Logger
	now     func() time.Time
}

// NewArchiver creates an archiver
func NewArchiver(querier Querier, objects ObjectWriter, cfg ArchiveConfig, logger *observability.Logger) *Archiver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "audit"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Archiver{
		querier: querier,
		objects: objects,
		cfg:     cfg,
		logger:  logger.WithField("component", "audit_archiver"),
		now:     time.Now,
	}
}

// Key returns the object key for day
func (a *Archiver) Key(day time.Time) string {
	return path.Join(a.cfg.Prefix, "dt="+day.UTC().Format(time.DateOnly), "audit.ndjson")
}

// ArchiveDay uploads every record created on day (UTC), oldest first
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (*ArchiveResult, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	if end.After(a.now().UTC()) {
		return nil, fmt.Errorf("archive %s: %w", start.Format(time.DateOnly), ErrDayNotClosed)
	}

	result := &ArchiveResult{Day: start, Key: a.Key(start)}

	var records []*Record
	for offset := 0; ; offset += a.cfg.PageSize {
		page, err := a.querier.Query(ctx, Filter{
			Since: start,
			// Postgres keeps microseconds
			Until:  end.Add(-time.Microsecond),
			Limit:  a.cfg.PageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read audit records for %s: %w", start.Format(time.DateOnly), err)
		}
		records = append(records, page...)
		if len(page) < a.cfg.PageSize {
			break
		}
	}

	result.Records = len(records)
	if len(records) == 0 {
		result.Skipped = true
		a.logger.WithField("day", start.Format(time.DateOnly)).Info("No audit records to archive")
		return result, nil
	}

	// Query pages are newest first
	slices.Reverse(records)

	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, records); err != nil {
		return nil, err
	}
	if err := a.objects.PutObject(ctx, result.Key, &buf, "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("failed to upload archive %s: %w", result.Key, err)
	}

	a.logger.WithFields(map[string]interface{}{
		"day":     start.Format(time.DateOnly),
		"key":     result.Key,
		"records": result.Records,
	}).Info("Audit day archived")
	return result, nil
}

// ArchivePrevious archives the last closed UTC day
func (a *Archiver) ArchivePrevious(ctx context.Context) (*ArchiveResult, error) {
	return a.ArchiveDay(ctx, a.now().UTC().AddDate(0, 0, -1))
}
