package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

const serviceName = "document-assistant"

// Init installs a global tracer provider exporting over OTLP/HTTP and returns
// its shutdown function. When disabled, or if the exporter cannot be built,
// it returns a no-op shutdown and leaves the default provider in place.
func Init(ctx context.Context, enabled bool, endpoint string, log *zap.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		log.Debug("opentelemetry tracing disabled")
		return noop
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn("failed to create OTLP exporter, tracing disabled", zap.Error(err))
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Info("opentelemetry tracer initialized", zap.String("endpoint", endpoint))

	return tp.Shutdown
}
