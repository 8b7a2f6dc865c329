package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MultiSink writes each record to every configured sink in order. A failing
// sink does not stop the others; all failures are returned together.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a sink fanning out to sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Append implements Sink
func (m *MultiSink) Append(ctx context.Context, rec *Record) error {
	var errs []error
	for i, s := range m.sinks {
		// Each sink gets its own copy; the database sink assigns ID
		cp := *rec
		if err := s.Append(ctx, &cp); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
			continue
		}
		if i == 0 {
			rec.ID = cp.ID
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
