package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const fileSinkName = "audit.ndjson"

// FileSink appends records as newline-delimited JSON to a local file with
// size based rotation. It is used as a secondary sink next to the database.
type FileSink struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64
	maxFiles int
	now      func() time.Time
}

// FileSinkConfig configures the file sink
type FileSinkConfig struct {
	BasePath string // Directory holding audit files
	Rotate   bool
	MaxSize  int64 // Bytes before rotation (default: 100MB)
	MaxFiles int   // Rotated files kept (default: 10)
}

// DefaultFileSinkConfig returns default configuration
func DefaultFileSinkConfig() FileSinkConfig {
	return FileSinkConfig{
		BasePath: "/var/log/tenantgate/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileSink opens (or creates) the current audit file under cfg.BasePath
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	s := &FileSink{
		basePath: cfg.BasePath,
		rotate:   cfg.Rotate,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
		now:      time.Now,
	}
	if s.maxSize <= 0 {
		s.maxSize = 100 * 1024 * 1024
	}
	if s.maxFiles <= 0 {
		s.maxFiles = 10
	}

	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) current() string {
	return filepath.Join(s.basePath, fileSinkName)
}

func (s *FileSink) open() error {
	if s.rotate {
		if info, err := os.Stat(s.current()); err == nil && info.Size() >= s.maxSize {
			if err := s.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate audit file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(s.current(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	s.file = file
	s.encoder = json.NewEncoder(file)
	return nil
}

func (s *FileSink) rotateFile() error {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	// Nanoseconds keep names unique when several rotations happen within a second
	rotated := filepath.Join(s.basePath, fmt.Sprintf("audit-%s.ndjson", s.now().UTC().Format("20060102T150405.000000000")))
	if err := os.Rename(s.current(), rotated); err != nil {
		return fmt.Errorf("failed to rename audit file: %w", err)
	}
	return s.prune()
}

// prune removes the oldest rotated files beyond maxFiles. The timestamp
// format sorts lexically in time order.
func (s *FileSink) prune() error {
	files, err := filepath.Glob(filepath.Join(s.basePath, "audit-*.ndjson"))
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}
	sort.Strings(files)

	var errs []error
	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Append writes rec as a single line
func (s *FileSink) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("audit file sink is closed")
	}

	if s.rotate {
		if info, err := s.file.Stat(); err == nil && info.Size() >= s.maxSize {
			if err := s.open(); err != nil {
				return err
			}
		}
	}

	if err := s.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Close closes the current file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadRecords decodes up to count records from the current file. count <= 0
// reads everything.
func (s *FileSink) ReadRecords(count int) ([]*Record, error) {
	file, err := os.Open(s.current())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer file.Close()

	return decodeRecords(bufio.NewReader(file), count)
}

func decodeRecords(r io.Reader, count int) ([]*Record, error) {
	var records []*Record
	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		records = append(records, &rec)
		if count > 0 && len(records) >= count {
			break
		}
	}
	return records, nil
}
