package async

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

var (
	// ErrPoolFull is returned by TrySubmit when the queue has no free slot
	ErrPoolFull = errors.New("worker pool queue is full")
	// ErrPoolClosed is returned once Shutdown has started
	ErrPoolClosed = errors.New("worker pool shut down")
)

// Task is a unit of work run by the pool
type Task func(ctx context.Context) error

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Workers   int
	QueueSize int
	TaskName  string
	// Timeout bounds each task; zero means no per-task deadline
	Timeout time.Duration
	// ErrorBuffer bounds the Errors channel; errors beyond it are logged and dropped
	ErrorBuffer int
	Logger      *observability.Logger
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize < 0 {
		c.QueueSize = 0
	}
	if c.ErrorBuffer <= 0 {
		c.ErrorBuffer = c.Workers * 10
	}
	if c.TaskName == "" {
		c.TaskName = "task"
	}
	if c.Logger == nil {
		c.Logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return c
}

// WorkerPool manages a fixed set of workers fed from a bounded queue.
// Provides graceful shutdown and bounded error collection.
type WorkerPool struct {
	cfg    PoolConfig
	logger *observability.Logger

	workCh chan Task
	doneCh chan struct{}
	errCh  chan error

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	closed       bool
	pending      atomic.Int64
	shutdownOnce sync.Once
}

// NewWorkerPool starts cfg.Workers workers. Tasks receive a context derived
// from ctx that is cancelled when Shutdown times out.
//
//	pool := async.NewWorkerPool(ctx, async.PoolConfig{Workers: 4, QueueSize: 1024, TaskName: "audit write"})
//	defer pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, cfg PoolConfig) *WorkerPool {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		cfg:    cfg,
		logger: cfg.Logger.WithField("task", cfg.TaskName),
		workCh: make(chan Task, cfg.QueueSize),
		doneCh: make(chan struct{}),
		errCh:  make(chan error, cfg.ErrorBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn, blocking while the queue is full
func (p *WorkerPool) Submit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		p.pending.Add(-1)
		return ErrPoolClosed
	}
}

// TrySubmit queues fn without blocking
func (p *WorkerPool) TrySubmit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.workCh <- fn:
		return nil
	default:
		p.pending.Add(-1)
		return ErrPoolFull
	}
}

// Pending returns the number of queued or running tasks
func (p *WorkerPool) Pending() int {
	return int(p.pending.Load())
}

// Shutdown stops accepting work and waits up to timeout for queued tasks to
// finish. On timeout the task context is cancelled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool %s shutdown timed out after %v with %d pending", p.cfg.TaskName, timeout, p.Pending())
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives task errors and recovered panics.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn Task) {
	defer p.pending.Add(-1)

	ctx, cancel := p.ctx, context.CancelFunc(func() {})
	if p.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.cfg.Timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("stack", string(debug.Stack())).Errorf("PANIC in worker: %v", r)
			p.report(fmt.Errorf("%s: panic: %v", p.cfg.TaskName, r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errCh <- err:
	default:
		p.logger.WithError(err).Warn("Error channel full, dropping error")
	}
}

// Batch processes items concurrently on a temporary pool and returns every
// error encountered.
func Batch[T any](ctx context.Context, items []T, cfg PoolConfig, fn func(context.Context, T) error) []error {
	cfg.ErrorBuffer = len(items) + 1
	pool := NewWorkerPool(ctx, cfg)

	for _, item := range items {
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			_ = pool.Shutdown(0)
			return []error{err}
		}
	}

	pool.mu.Lock()
	pool.closed = true
	pool.mu.Unlock()
	pool.shutdownOnce.Do(func() {
		close(pool.workCh)
		<-pool.doneCh
		pool.cancel()
	})

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
