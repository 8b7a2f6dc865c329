// Package audit records who did what to which resource, and serves the
// operator read path over those records.
//
// # Write path
//
// Recorder is fire-and-forget. Record normalizes an Entry (action and resource
// upper-cased), attributes it to the actor's tenant, stamps the server time
// and hands it to a bounded worker pool. The originating request never waits
// for the write and never sees its failure:
//
//	recorder := audit.NewRecorder(audit.NewDBStore(db, cfg), cfg, logger,
//		audit.WithMetrics(metrics))
//	defer recorder.Close(10 * time.Second)
//
//	recorder.Record(ctx, audit.Entry{
//		Action:     "update",
//		Resource:   "customer",
//		ResourceID: customerID,
//		Actor:      principal,
//		Details:    map[string]interface{}{"status": 200},
//	})
//
// Writes run on a context detached from the request, so a client disconnect
// does not abort them. Sink errors and panics are logged and counted in
// Stats. Only platform actors may attribute a record to another tenant via
// Entry.TenantOverride.
//
// Sinks: DBStore (audit_logs table), FileSink (rotated NDJSON files) and
// MultiSink to fan out to several.
//
// # Read path
//
// DBStore.Query filters by time window (default 30 days), action, resource,
// actor id, actor email substring and tenant, newest first, 1000 rows by
// default. Handlers expose it as:
//
//	GET /audit/events
//	GET /audit/export?format=csv|ndjson
//	GET /audit/stats
//
// Tenant-bound callers are always restricted to their own tenant.
//
// # Archiving
//
// Archiver writes each closed UTC day to one NDJSON object, e.g.
// audit/dt=2026-10-17/audit.ndjson. It never deletes records.
package audit
