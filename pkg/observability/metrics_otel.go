package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pipeline outcomes recorded on decision instruments
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
)

// OTelMetrics holds the OpenTelemetry instruments for authorization decisions
type OTelMetrics struct {
	decisions          metric.Int64Counter
	evaluationDuration metric.Float64Histogram
	auditEmitted       metric.Int64Counter
}

// NewOTelMetrics creates the pipeline instruments on meter. A nil meter uses
// the global provider.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &OTelMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter(
		"tenantgate.pipeline.decisions",
		metric.WithDescription("Authorization stage decisions by stage and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.evaluationDuration, err = meter.Float64Histogram(
		"tenantgate.pipeline.duration",
		metric.WithDescription("Full pipeline evaluation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation duration histogram: %w", err)
	}

	m.auditEmitted, err = meter.Int64Counter(
		"tenantgate.audit.emitted",
		metric.WithDescription("Audit entries emitted by the pipeline"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit emitted counter: %w", err)
	}

	return m, nil
}

// RecordDecision counts one stage decision. code is the rejection code, empty
// when the stage allowed the request.
func (m *OTelMetrics) RecordDecision(ctx context.Context, stage, outcome, code string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	}
	if code != "" {
		attrs = append(attrs, attribute.String("code", code))
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEvaluation records the latency of one full evaluation
func (m *OTelMetrics) RecordEvaluation(ctx context.Context, policy, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("outcome", outcome),
	))
}

// RecordAuditEmitted counts an audit entry handed to the recorder
func (m *OTelMetrics) RecordAuditEmitted(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.auditEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
