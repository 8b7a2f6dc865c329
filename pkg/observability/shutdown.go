package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type shutdownStage struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered stages one after another, in registration
// order, under a single deadline. A failing stage does not stop later stages.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu     sync.Mutex
	stages []shutdownStage
	done   bool
}

// NewShutdownManager creates a shutdown manager. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = NewLogger(ErrorLevel, io.Discard)
	}
	return &ShutdownManager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register appends a named stage. Nil functions are ignored.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stages = append(sm.stages, shutdownStage{name: name, fn: fn})
}

// Shutdown runs every stage once. Later calls are no-ops.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.done {
		sm.mu.Unlock()
		return nil
	}
	sm.done = true
	stages := append([]shutdownStage(nil), sm.stages...)
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error
	for _, stage := range stages {
		log := sm.logger.WithField("stage", stage.name)
		if ctx.Err() != nil {
			log.Warn("Shutdown deadline reached, skipping stage")
			errs = append(errs, fmt.Errorf("%s: %w", stage.name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := stage.fn(ctx); err != nil {
			log.WithError(err).Error("Shutdown stage failed")
			errs = append(errs, fmt.Errorf("%s: %w", stage.name, err))
			continue
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Shutdown stage complete")
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx cancellation, then runs Shutdown
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	sm.logger.Info("Starting graceful shutdown")

	return sm.Shutdown(context.Background())
}
