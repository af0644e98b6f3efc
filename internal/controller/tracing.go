// Tracing instrumentation for node execution.
package controller

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/sentinel/internal/taskgraph"
	"github.com/openclaw/sentinel/internal/telemetry"
)

// startNodeSpan starts a span for one node execution.
func (c *Controller) startNodeSpan(ctx context.Context, node *taskgraph.Node) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "node."+node.ID)
	span.SetAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.tool", node.Tool),
	)
	return ctx, span
}

// endNodeSpan ends the node span with its outcome.
func (c *Controller) endNodeSpan(span trace.Span, success bool, errMsg string) {
	span.SetAttributes(attribute.Bool("node.success", success))
	if errMsg != "" {
		span.RecordError(errors.New(errMsg))
	}
	span.End()
}
