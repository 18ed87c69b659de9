package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName identifies spans exported by this server.
const ServiceName = "herald-mcp"

// Shutdown flushes and stops whatever Setup installed.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP to
// endpoint. With no endpoint it leaves the no-op providers in place.
func Setup(ctx context.Context, endpoint, version string) (Shutdown, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{}
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewGlobalObserver builds an Observer from the global meter and tracer
// providers.
func NewGlobalObserver(transportName string) (*Observer, error) {
	return NewObserver(
		otel.GetMeterProvider().Meter("herald-mcp/tools"),
		otel.GetTracerProvider().Tracer("herald-mcp/tools"),
		transportName,
	)
}
