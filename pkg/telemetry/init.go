// Package telemetry wires OpenTelemetry tracing and the Prometheus collectors.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/DrSkyle/faultline/pkg/config"
)

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Init installs the global tracer provider and W3C propagators.
//
// Spans go to the OTLP endpoint from cfg or OTEL_EXPORTER_OTLP_ENDPOINT. Without
// one they are printed to stderr when cfg.Stdout is set and dropped otherwise,
// so span contexts (and the trace ids in logs) exist either way.
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceVersion string) (Shutdown, error) {
	return initWith(ctx, cfg, serviceVersion, os.Stderr)
}

func initWith(ctx context.Context, cfg config.TelemetryConfig, serviceVersion string, stdout io.Writer) (Shutdown, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "faultline"
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg, stdout)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exp, nil
	}

	w := io.Discard
	if cfg.Stdout {
		w = stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("stdout exporter: %w", err)
	}
	return exp, nil
}
