// Package async provides a bounded worker pool for background tasks.
//
// WorkerPool runs tasks on a fixed number of workers fed from a bounded
// queue. Submit blocks while the queue is full; TrySubmit returns ErrPoolFull
// instead, which is what fire-and-forget producers such as the audit recorder
// use so the caller never waits.
//
//	pool := async.NewWorkerPool(ctx, async.PoolConfig{
//		Workers:   4,
//		QueueSize: 1024,
//		TaskName:  "audit write",
//		Timeout:   5 * time.Second,
//	})
//	defer pool.Shutdown(10 * time.Second)
//
// Each task gets panic recovery and an optional deadline. Task errors and
// recovered panics go to a bounded Errors channel; overflow is logged and
// dropped.
//
// Batch runs a slice of items through a temporary pool and collects errors.
package async
