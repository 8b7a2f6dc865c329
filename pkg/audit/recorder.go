package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/async"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Outcome labels shared by Stats and the Prometheus counter
const (
	resultEnqueued = "enqueued"
	resultWritten  = "written"
	resultFailed   = "failed"
	resultDropped  = "dropped"
)

// Stats is a snapshot of the recorder counters
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Written  int64 `json:"written"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
	Pending  int   `json:"pending"`
}

// Recorder hands audit records to a background worker pool. Record never
// blocks on the sink and never reports an error to its caller.
type Recorder struct {
	sink    Sink
	pool    *async.WorkerPool
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	enqueued atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithClock overrides the clock used to stamp CreatedAt
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithMetrics mirrors the recorder counters to Prometheus
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder starts the writer pool
func NewRecorder(sink Sink, cfg Config, logger *observability.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	r := &Recorder{
		sink:   sink,
		cfg:    cfg,
		logger: logger.WithField("component", "audit_recorder"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	// Deadlines are applied per write in write(), on a context detached from the request
	r.pool = async.NewWorkerPool(context.Background(), async.PoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		TaskName:  "audit write",
		Logger:    logger,
	})
	return r
}

// Record normalizes e and queues it for writing. Invalid entries and entries
// arriving while the queue is full are dropped with a warning.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	rec, err := r.build(e)
	if err != nil {
		r.drop(err, e)
		return
	}

	// Keep request values (trace, request id) but not its cancellation
	detached := context.WithoutCancel(ctx)

	if err := r.pool.TrySubmit(func(poolCtx context.Context) error {
		r.write(detached, poolCtx, rec)
		return nil
	}); err != nil {
		r.drop(err, e)
		return
	}

	r.enqueued.Add(1)
	r.metrics.RecordAudit(resultEnqueued)
	r.metrics.SetAuditQueueDepth(r.pool.Pending())
}

var (
	errMissingAction   = errors.New("missing action")
	errMissingResource = errors.New("missing resource")
	errMissingActor    = errors.New("missing actor")
)

func (r *Recorder) build(e Entry) (*Record, error) {
	action := normalizeName(e.Action)
	resource := normalizeName(e.Resource)
	switch {
	case action == "":
		return nil, errMissingAction
	case resource == "":
		return nil, errMissingResource
	case e.Actor == nil || e.Actor.ID == "":
		return nil, errMissingActor
	}

	tenantID := e.Actor.TenantID
	if e.TenantOverride != "" {
		if e.Actor.IsPlatform() {
			tenantID = e.TenantOverride
		} else {
			r.logger.WithFields(map[string]interface{}{
				"actor_user_id":   e.Actor.ID,
				"tenant_id":       e.Actor.TenantID,
				"override_tenant": e.TenantOverride,
			}).Warn("Ignoring audit tenant override from non-platform actor")
		}
	}

	details := e.Details
	if details == nil {
		details = map[string]interface{}{}
	}

	return &Record{
		TenantID:    tenantID,
		ActorUserID: e.Actor.ID,
		Action:      action,
		Resource:    resource,
		ResourceID:  e.ResourceID,
		Details:     details,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		RequestID:   e.RequestID,
		CreatedAt:   r.now().UTC(),
	}, nil
}

func (r *Recorder) drop(reason error, e Entry) {
	r.dropped.Add(1)
	r.metrics.RecordAudit(resultDropped)
	r.logger.WithError(reason).WithFields(map[string]interface{}{
		"action":   e.Action,
		"resource": e.Resource,
	}).Warn("Audit record dropped")
}

// write runs on a pool worker. Failures and panics are absorbed here.
func (r *Recorder) write(detached, poolCtx context.Context, rec *Record) {
	ctx, cancel := detached, context.CancelFunc(func() {})
	if r.cfg.WriteTimeout > 0 {
		ctx, cancel = context.WithTimeout(detached, r.cfg.WriteTimeout)
	}
	defer cancel()
	// Abandon the write if the pool is force-stopped
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	start := time.Now()
	defer func() {
		r.metrics.ObserveAuditWrite(time.Since(start))
		r.metrics.SetAuditQueueDepth(r.pool.Pending() - 1)

		if p := recover(); p != nil {
			r.fail(rec, fmt.Errorf("panic: %v", p), string(debug.Stack()))
		}
	}()

	if err := r.sink.Append(ctx, rec); err != nil {
		r.fail(rec, err, "")
		return
	}
	r.metrics.RecordAudit(resultWritten)
	r.written.Add(1)
}

func (r *Recorder) fail(rec *Record, err error, stack string) {
	r.metrics.RecordAudit(resultFailed)
	r.failed.Add(1)

	log := r.logger.WithError(err).WithFields(map[string]interface{}{
		"action":        rec.Action,
		"resource":      rec.Resource,
		"actor_user_id": rec.ActorUserID,
		"tenant_id":     rec.TenantID,
	})
	if stack != "" {
		log = log.WithField("stack", stack)
	}
	log.Error("Audit write failed")
}

// Stats returns the current counters
func (r *Recorder) Stats() Stats {
	return Stats{
		Enqueued: r.enqueued.Load(),
		Written:  r.written.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
		Pending:  r.pool.Pending(),
	}
}

// Close stops accepting records and waits up to timeout for the queue to drain
func (r *Recorder) Close(timeout time.Duration) error {
	err := r.pool.Shutdown(timeout)
	stats := r.Stats()
	r.logger.WithFields(map[string]interface{}{
		"enqueued": stats.Enqueued,
		"written":  stats.Written,
		"failed":   stats.Failed,
		"dropped":  stats.Dropped,
	}).Info("Audit recorder closed")
	return err
}
