package wspipe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in a trace backend.
const tracerName = "github.com/luciancaetano/wspipe"

// defaultTracer returns the globally configured otel tracer. When nothing
// has called otel.SetTracerProvider, this resolves to a no-op tracer, so
// tracing costs nothing when the host application hasn't opted in.
func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startInvokeSpan wraps one dispatched invocation in a span carrying the
// matched pattern and the client id; the caller ends it once the handler
// chain returns.
func startInvokeSpan(tracer trace.Tracer, pattern, clientID string) (context.Context, trace.Span) {
	return tracer.Start(context.Background(), "wspipe.invoke",
		trace.WithAttributes(
			attribute.String("wspipe.pattern", pattern),
			attribute.String("wspipe.client_id", clientID),
		),
	)
}

func recordInvokeOutcome(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("wspipe.status", status))
	if status >= 500 {
		span.RecordError(errInternalForTrace)
	}
}

var errInternalForTrace = &InvokeError{Status: 500, Message: "internal error"}
