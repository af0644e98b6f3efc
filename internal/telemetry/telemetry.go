// Package telemetry wraps OpenTelemetry span creation behind a process-wide
// tracer so components do not carry tracer plumbing themselves.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer creates spans for one named component of the process.
type Tracer struct {
	tracer trace.Tracer
	debug  bool
}

var (
	mu     sync.RWMutex
	global = &Tracer{tracer: otel.Tracer("sentinel")}
)

// Init configures the global tracer. debug enables verbose span attributes
// such as tool outputs.
func Init(serviceName string, debug bool) {
	mu.Lock()
	defer mu.Unlock()
	global = &Tracer{tracer: otel.Tracer(serviceName), debug: debug}
}

// GetTracer returns the process tracer. Without Init it uses the ambient
// OpenTelemetry provider, which is a no-op unless the host process installs
// one.
func GetTracer() *Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// StartSpan starts a child span under ctx.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// Debug reports whether verbose span attributes are enabled.
func (t *Tracer) Debug() bool { return t.debug }
