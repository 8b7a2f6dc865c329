package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	key         string
	body        string
	contentType string
}

type fakeObjects struct {
	puts []putCall
	err  error
}

func (f *fakeObjects) PutObject(ctx context.Context, key string, content io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return err
	}
	f.puts = append(f.puts, putCall{key: key, body: buf.String(), contentType: contentType})
	return nil
}

// pagedQuerier serves newest-first pages out of a fixed slice
type pagedQuerier struct {
	records []*Record
	filters []Filter
}

func (p *pagedQuerier) Query(ctx context.Context, f Filter) ([]*Record, error) {
	p.filters = append(p.filters, f)
	if f.Offset >= len(p.records) {
		return []*Record{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(p.records) {
		end = len(p.records)
	}
	return p.records[f.Offset:end], nil
}

func (p *pagedQuerier) Summary(ctx context.Context, f Filter) ([]ActionCount, error) {
	return nil, nil
}

func newTestArchiver(q Querier, objects ObjectWriter, cfg ArchiveConfig) *Archiver {
	a := NewArchiver(q, objects, cfg, nil)
	a.now = func() time.Time { return storeNow }
	return a
}

func dayRecords(n int) []*Record {
	base := time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)
	out := make([]*Record, n)
	for i := range out {
		// newest first, like Query
		out[i] = &Record{ID: int64(n - i), ActorUserID: "u1", Action: "UPDATE", Resource: "CUSTOMER",
			CreatedAt: base.Add(-time.Duration(i) * time.Minute)}
	}
	return out
}

func TestArchiver_ArchiveDay(t *testing.T) {
	q := &pagedQuerier{records: dayRecords(5)}
	objects := &fakeObjects{}
	a := newTestArchiver(q, objects, ArchiveConfig{Prefix: "tenantgate", PageSize: 2})

	day := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	result, err := a.ArchiveDay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, "tenantgate/dt=2026-10-16/audit.ndjson", result.Key)
	assert.Equal(t, 5, result.Records)
	assert.False(t, result.Skipped)
	assert.Len(t, q.filters, 3, "pages until a short page")

	first := q.filters[0]
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), first.Since)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC).Add(-time.Microsecond), first.Until)
	assert.Equal(t, 4, q.filters[2].Offset)

	require.Len(t, objects.puts, 1)
	put := objects.puts[0]
	assert.Equal(t, "application/x-ndjson", put.contentType)
	lines := strings.Split(strings.TrimSpace(put.body), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], `"id":1`, "oldest first")
	assert.Contains(t, lines[4], `"id":5`)
}

func TestArchiver_SkipsEmptyDay(t *testing.T) {
	objects := &fakeObjects{}
	a := newTestArchiver(&pagedQuerier{}, objects, ArchiveConfig{})

	result, err := a.ArchivePrevious(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "audit/dt=2026-10-16/audit.ndjson", result.Key)
	assert.Empty(t, objects.puts)
}

func TestArchiver_DayNotClosed(t *testing.T) {
	a := newTestArchiver(&pagedQuerier{}, &fakeObjects{}, ArchiveConfig{})

	_, err := a.ArchiveDay(context.Background(), storeNow)
	assert.ErrorIs(t, err, ErrDayNotClosed)
}

func TestArchiver_Errors(t *testing.T) {
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	t.Run("query", func(t *testing.T) {
		a := newTestArchiver(&fakeQuerier{err: errors.New("db down")}, &fakeObjects{}, ArchiveConfig{})
		_, err := a.ArchiveDay(context.Background(), day)
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("upload", func(t *testing.T) {
		objects := &fakeObjects{err: errors.New("access denied")}
		a := newTestArchiver(&pagedQuerier{records: dayRecords(1)}, objects, ArchiveConfig{})
		_, err := a.ArchiveDay(context.Background(), day)
		assert.ErrorContains(t, err, "access denied")
	})
}
