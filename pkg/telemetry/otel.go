// Package telemetry sets up OpenTelemetry tracing with OTLP gRPC export.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// ServiceName identifies hminer in traces.
const ServiceName = "hminer"

// Config configures the OTLP gRPC exporter.
type Config struct {
	// Enabled turns on export. When false the global no-op tracer stays in place.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string `yaml:"endpoint"`

	// ServiceVersion is the version of this service
	ServiceVersion string `yaml:"service_version"`

	// Environment is the deployment environment (e.g., "production", "staging")
	Environment string `yaml:"environment"`

	// Insecure disables TLS for the gRPC connection (use for local dev)
	Insecure bool `yaml:"insecure"`

	// Headers are additional headers to send with each request (e.g., auth tokens)
	Headers map[string]string `yaml:"headers,omitempty"`

	// SamplingRatio is the fraction of traces to sample (0.0 to 1.0)
	SamplingRatio float64 `yaml:"sampling_ratio"`

	// BatchTimeout is how long to wait before sending a batch of spans
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// ExportTimeout is the timeout for exporting a batch
	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// DefaultConfig returns a disabled exporter pointed at a local collector.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "localhost:4317",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Insecure:       true,
		SamplingRatio:  1.0,
		BatchTimeout:   5 * time.Second,
		ExportTimeout:  30 * time.Second,
	}
}

// Provider hands out tracers and flushes them on shutdown.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	_, ok := p.tp.(*sdktrace.TracerProvider)
	return ok
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	if err := p.shutdown(ctx); err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeTelemetry, "failed to flush spans")
	}
	return nil
}

// Init builds a tracer provider exporting to cfg.Endpoint and installs it
// globally. A disabled config returns a provider of no-op tracers and
// installs nothing.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tp: noop.NewTracerProvider()}, nil
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.ExportTimeout > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if len(cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeTelemetry, "failed to create OTLP exporter").
			WithContext("endpoint", cfg.Endpoint)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeTelemetry, "failed to create resource")
	}

	var bspOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		bspOpts = append(bspOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, bspOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// Sampler maps a sampling ratio to a sampler. Ratios outside (0, 1) sample
// everything or nothing.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}
