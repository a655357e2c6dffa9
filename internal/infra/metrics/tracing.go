package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/support/logger"
)

// TracerProvider owns the OTLP trace pipeline lifecycle.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// SetupTracing installs a global tracer provider exporting over OTLP/HTTP.
// When tracing is disabled it returns an inert provider.
func SetupTracing(ctx context.Context, cfg config.TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "temposync"
	}

	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	logger.Infof("tracing enabled, exporting to %q as %q", cfg.Endpoint, serviceName)
	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes and stops the pipeline.
func (t *TracerProvider) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
