// Package tracing wraps pipeline and seal operations in OpenTelemetry
// spans, with a stdout exporter wired in as the default trace backend.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kenchrcum/streamseal"

// NewTracerProvider builds a TracerProvider that exports spans to stdout,
// suitable for the debug HTTP surface and the CLI. Production deployments
// would swap in an OTLP exporter pointed at a live collector.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartPipelineSpan starts a span around one encrypt/decrypt call,
// tagged with the operation's direction ("encrypt" or "decrypt").
func StartPipelineSpan(ctx context.Context, direction string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "streamseal.pipeline."+direction,
		trace.WithAttributes(attribute.String("streamseal.direction", direction)),
	)
}

// StartSealSpan starts a span around one chunk-seal operation ("encrypt",
// "decrypt", "seal", or "open").
func StartSealSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "streamseal.seal."+operation,
		trace.WithAttributes(attribute.String("streamseal.operation", operation)),
	)
}

// EndSpan records err on span (if non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
