package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/async"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

var (
	runOnce     = flag.Bool("run-once", false, "Archive once and exit")
	archiveDate = flag.String("date", "", "Day to archive (YYYY-MM-DD). Empty means yesterday. Only used with --run-once")
	fromDate    = flag.String("from", "", "First day of a backfill range (YYYY-MM-DD). Only used with --run-once")
	toDate      = flag.String("to", "", "Last day of a backfill range (YYYY-MM-DD), inclusive. Defaults to yesterday")
	concurrency = flag.Int("concurrency", 4, "Days archived in parallel during a backfill")
	schedule    = flag.String("schedule", "", "Cron schedule (UTC); overrides TENANTGATE_ARCHIVE_SCHEDULE")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := setupLogger(*logLevel)

	cfg := config.Load()
	if *schedule != "" {
		cfg.Archive.Schedule = *schedule
	}
	if err := cfg.ValidateArchive(); err != nil {
		logger.Fatalf("Invalid archive configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archiver, closeFn, err := newArchiver(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize archiver: %v", err)
	}
	defer closeFn()

	if *runOnce {
		days, err := daysToArchive(*archiveDate, *fromDate, *toDate, time.Now().UTC())
		if err != nil {
			logger.Fatalf("Invalid date: %v", err)
		}
		if errs := archiveDays(ctx, archiver, days, *concurrency, logger); len(errs) > 0 {
			logger.Fatalf("Archiving failed for %d of %d days", len(errs), len(days))
		}
		logger.Info("Archiving completed successfully")
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(cfg.Archive.Schedule, func() {
		logger.Info("Starting scheduled archive of the previous day")
		result, err := archiver.ArchivePrevious(ctx)
		if err != nil {
			logger.Errorf("Scheduled archive failed: %v", err)
			return
		}
		logResult(logger, result)
	})
	if err != nil {
		logger.Fatalf("Failed to schedule archive: %v", err)
	}

	c.Start()
	logger.Infof("Audit archiver started with schedule %q", cfg.Archive.Schedule)

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	// Wait for a running job to finish
	<-c.Stop().Done()
	logger.Info("Archiver stopped")
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// newArchiver connects to Postgres and S3. The returned func closes the
// database connections.
func newArchiver(ctx context.Context, cfg *config.Config) (*audit.Archiver, func(), error) {
	// The archiver's own structured logs go to stderr next to the CLI output
	structured := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)

	db, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig, structured)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	objects, err := storage.NewS3Client(ctx, cfg.Archive.S3)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	querier := audit.NewDBStoreFunc(db.Replica, cfg.Audit.Config)
	archiver := audit.NewArchiver(querier, objects, cfg.Archive.Archive, structured)
	return archiver, func() { db.Close() }, nil
}

// daysToArchive resolves the --date, --from and --to flags into a list of
// UTC days, oldest first
func daysToArchive(date, from, to string, now time.Time) ([]time.Time, error) {
	yesterday := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)

	if from == "" {
		if date == "" {
			return []time.Time{yesterday}, nil
		}
		day, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, err
		}
		return []time.Time{day}, nil
	}

	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return nil, err
	}
	end := yesterday
	if to != "" {
		if end, err = time.Parse(time.DateOnly, to); err != nil {
			return nil, err
		}
	}
	if end.Before(start) {
		return nil, fmt.Errorf("--to %s is before --from %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// archiveDays archives every day on a bounded pool and returns the failures.
// Days that are not closed yet are reported but not counted as failures.
func archiveDays(ctx context.Context, archiver *audit.Archiver, days []time.Time, workers int, logger *logrus.Logger) []error {
	return async.Batch(ctx, days, async.PoolConfig{
		Workers:   workers,
		QueueSize: len(days),
		TaskName:  "audit archive",
	}, func(ctx context.Context, day time.Time) error {
		result, err := archiver.ArchiveDay(ctx, day)
		switch {
		case errors.Is(err, audit.ErrDayNotClosed):
			logger.Warnf("Skipping %s: day is not closed yet", day.Format(time.DateOnly))
			return nil
		case err != nil:
			logger.Errorf("Archive of %s failed: %v", day.Format(time.DateOnly), err)
			return err
		}
		logResult(logger, result)
		return nil
	})
}

func logResult(logger *logrus.Logger, result *audit.ArchiveResult) {
	entry := logger.WithFields(logrus.Fields{
		"day":     result.Day.Format(time.DateOnly),
		"records": result.Records,
	})
	if result.Skipped {
		entry.Info("No records, nothing uploaded")
		return
	}
	entry.WithField("key", result.Key).Info("✓ Day archived")
}
