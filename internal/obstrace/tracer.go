// Package obstrace wraps OpenTelemetry tracing for the agent's sample and
// upload round trips, with a selectable exporter and a no-op default.
package obstrace

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExporterType selects where spans are sent.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config configures the tracer provider.
type Config struct {
	ServiceName  string
	ExporterType ExporterType
	OTLPEndpoint string
	OTLPInsecure bool
}

// Tracer wraps an OpenTelemetry tracer provider.
type Tracer struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
	mu       sync.Mutex
}

var (
	global   *Tracer
	globalMu sync.RWMutex
)

// New builds a Tracer. An ExporterNone (or zero-value) config yields a
// fully functional no-op tracer.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pylon-agent"
	}

	if cfg.ExporterType == "" || cfg.ExporterType == ExporterNone {
		return Noop(), nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("obstrace: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("obstrace: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	t := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		shutdown: provider.Shutdown,
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))
	return t, nil
}

func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("obstrace: unknown exporter type %q", cfg.ExporterType)
	}
}

// Noop returns a tracer that discards every span, used as the default
// and whenever tracing is disabled.
func Noop() *Tracer {
	tp := noop.NewTracerProvider()
	return &Tracer{
		provider: tp,
		tracer:   tp.Tracer("pylon-agent"),
		shutdown: func(context.Context) error { return nil },
	}
}

// StartSampleSpan starts a span covering one discover/dial/decode cycle.
func (t *Tracer) StartSampleSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pylon.sample",
		trace.WithAttributes(attribute.String("pylon.run_id", runID)),
		trace.WithSpanKind(trace.SpanKindClient))
}

// StartUploadSpan starts a span covering one POST attempt.
func (t *Tracer) StartUploadSpan(ctx context.Context, runID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pylon.upload",
		trace.WithAttributes(
			attribute.String("pylon.run_id", runID),
			attribute.Int("pylon.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindClient))
}

// RecordError records err on span along with whether the failure is
// considered retryable.
func RecordError(span trace.Span, err error, retryable bool) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error.retryable", retryable))
}

// Shutdown flushes and releases the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// SetGlobal installs t as the process-wide tracer instance.
func SetGlobal(t *Tracer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = t
}

// Global returns the process-wide tracer instance, or a no-op tracer if
// none has been installed yet.
func Global() *Tracer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return Noop()
	}
	return global
}
