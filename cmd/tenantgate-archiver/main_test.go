package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/audit"
)

func TestDaysToArchive(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	day := func(s string) time.Time {
		d, err := time.Parse(time.DateOnly, s)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name     string
		date     string
		from, to string
		want     []time.Time
		wantErr  bool
	}{
		{name: "yesterday by default", want: []time.Time{day("2026-10-17")}},
		{name: "explicit date", date: "2026-09-01", want: []time.Time{day("2026-09-01")}},
		{name: "range", from: "2026-10-14", to: "2026-10-16", want: []time.Time{day("2026-10-14"), day("2026-10-15"), day("2026-10-16")}},
		{name: "open range ends yesterday", from: "2026-10-16", want: []time.Time{day("2026-10-16"), day("2026-10-17")}},
		{name: "bad date", date: "17/10/2026", wantErr: true},
		{name: "bad from", from: "yesterday", wantErr: true},
		{name: "inverted range", from: "2026-10-16", to: "2026-10-14", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := daysToArchive(tt.date, tt.from, tt.to, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// oneRecordPerDay answers every query with a single record
type oneRecordPerDay struct{}

func (oneRecordPerDay) Query(ctx context.Context, f audit.Filter) ([]*audit.Record, error) {
	if f.Offset > 0 {
		return nil, nil
	}
	return []*audit.Record{{ID: 1, ActorUserID: "u1", Action: "create", Resource: "customer", CreatedAt: f.Since}}, nil
}

func (oneRecordPerDay) Summary(ctx context.Context, f audit.Filter) ([]audit.ActionCount, error) {
	return nil, nil
}

type objectLog struct {
	mu     sync.Mutex
	keys   []string
	failOn string
}

func (o *objectLog) PutObject(ctx context.Context, key string, content io.Reader, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if key == o.failOn {
		return errors.New("access denied")
	}
	o.keys = append(o.keys, key)
	return nil
}

func TestArchiveDays(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	objects := &objectLog{failOn: "audit/dt=2026-01-02/audit.ndjson"}
	archiver := audit.NewArchiver(oneRecordPerDay{}, objects, audit.ArchiveConfig{}, nil)

	days, err := daysToArchive("", "2026-01-01", "2026-01-03", time.Now())
	require.NoError(t, err)

	// A day in the future is skipped, not failed
	days = append(days, time.Now().UTC().AddDate(0, 0, 1))

	errs := archiveDays(context.Background(), archiver, days, 2, logger)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "access denied")
	assert.ElementsMatch(t, []string{
		"audit/dt=2026-01-01/audit.ndjson",
		"audit/dt=2026-01-03/audit.ndjson",
	}, objects.keys)
}
