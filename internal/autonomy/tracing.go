package autonomy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/sentinel/internal/planner"
	"github.com/openclaw/sentinel/internal/telemetry"
)

// startCycleSpan opens a span covering one autonomy cycle.
func (l *Loop) startCycleSpan(ctx context.Context, cycle int, plan *planner.Plan) (context.Context, trace.Span) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, fmt.Sprintf("cycle.%d", cycle))
	span.SetAttributes(
		attribute.Int("cycle.number", cycle),
		attribute.String("cycle.plan_id", plan.ID),
		attribute.Int("cycle.plan_version", plan.Version),
	)
	return ctx, span
}

// endCycleSpan records the cycle outcome on the span. The caller owns End.
func (l *Loop) endCycleSpan(span trace.Span, record CycleRecord, err error) {
	span.SetAttributes(
		attribute.Int("cycle.simulated_nodes", record.SimulatedNodes),
		attribute.Int("cycle.predicted_failures", len(record.PredictedFailures)),
	)
	if record.Trace != nil {
		span.SetAttributes(
			attribute.Int("cycle.executed", len(record.Trace.Executed)),
			attribute.Int("cycle.failed", len(record.Trace.Failed)),
		)
	}
	if err != nil {
		span.RecordError(err)
	}
}
