// Package obsmetrics wires the agent's queue, sampler and uploader
// components to OpenTelemetry metrics, with a selectable exporter and a
// no-op default so the agent carries zero overhead when observability is
// not requested.
package obsmetrics

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ExporterType selects where metrics are sent.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config configures the metrics provider.
type Config struct {
	ServiceName  string
	ExporterType ExporterType
	OTLPEndpoint string
	OTLPInsecure bool
}

// Metrics holds the instruments this agent reports.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	shutdown func(context.Context) error

	queueDepth     metric.Int64ObservableGauge
	queueThreshold metric.Int64ObservableGauge
	sampleLatency  metric.Float64Histogram
	sampleSlips    metric.Int64Counter
	uploadSuccess  metric.Int64Counter
	uploadFailure  metric.Int64Counter
	uploadRetries  metric.Int64Counter

	mu            sync.RWMutex
	queueDepthFn  func() int64
	queueThreshFn func() int64
}

var (
	global   *Metrics
	globalMu sync.RWMutex
)

// New builds a Metrics instance. An ExporterNone (or zero-value) config
// yields a fully functional no-op provider.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pylon-agent"
	}

	m := &Metrics{}

	if cfg.ExporterType == "" || cfg.ExporterType == ExporterNone {
		m.provider = sdkmetric.NewMeterProvider()
		m.meter = m.provider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, m.registerInstruments()
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	m.provider = provider
	m.meter = provider.Meter(cfg.ServiceName)
	m.shutdown = provider.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, err
	}
	return m, nil
}

func createExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("obsmetrics: unknown exporter type %q", cfg.ExporterType)
	}
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.sampleLatency, err = m.meter.Float64Histogram("pylon.sample.latency",
		metric.WithDescription("Time spent taking one measurement"), metric.WithUnit("ms"))
	if err != nil {
		return fmt.Errorf("obsmetrics: sample latency histogram: %w", err)
	}

	m.sampleSlips, err = m.meter.Int64Counter("pylon.sample.slips",
		metric.WithDescription("Count of sampling ticks that slipped behind their target cadence"))
	if err != nil {
		return fmt.Errorf("obsmetrics: sample slip counter: %w", err)
	}

	m.uploadSuccess, err = m.meter.Int64Counter("pylon.upload.success",
		metric.WithDescription("Count of measurements successfully uploaded"))
	if err != nil {
		return fmt.Errorf("obsmetrics: upload success counter: %w", err)
	}

	m.uploadFailure, err = m.meter.Int64Counter("pylon.upload.failure",
		metric.WithDescription("Count of upload attempts that failed"))
	if err != nil {
		return fmt.Errorf("obsmetrics: upload failure counter: %w", err)
	}

	m.uploadRetries, err = m.meter.Int64Counter("pylon.upload.retries",
		metric.WithDescription("Count of upload retries"))
	if err != nil {
		return fmt.Errorf("obsmetrics: upload retry counter: %w", err)
	}

	m.queueDepth, err = m.meter.Int64ObservableGauge("pylon.queue.depth",
		metric.WithDescription("Number of measurements waiting in the upload queue"))
	if err != nil {
		return fmt.Errorf("obsmetrics: queue depth gauge: %w", err)
	}

	m.queueThreshold, err = m.meter.Int64ObservableGauge("pylon.queue.threshold_level",
		metric.WithDescription("Index of the highest capacity threshold currently crossed"))
	if err != nil {
		return fmt.Errorf("obsmetrics: queue threshold gauge: %w", err)
	}

	_, err = m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		m.mu.RLock()
		depthFn, threshFn := m.queueDepthFn, m.queueThreshFn
		m.mu.RUnlock()
		if depthFn != nil {
			o.ObserveInt64(m.queueDepth, depthFn())
		}
		if threshFn != nil {
			o.ObserveInt64(m.queueThreshold, threshFn())
		}
		return nil
	}, m.queueDepth, m.queueThreshold)
	if err != nil {
		return fmt.Errorf("obsmetrics: register queue callback: %w", err)
	}

	return nil
}

// ObserveQueueWith registers callbacks the queue gauges poll on export.
func (m *Metrics) ObserveQueueWith(depth func() int64, threshold func() int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepthFn = depth
	m.queueThreshFn = threshold
}

// RecordSampleLatency records how long one measurement took.
func (m *Metrics) RecordSampleLatency(ctx context.Context, latencyMs float64) {
	m.sampleLatency.Record(ctx, latencyMs)
}

// RecordSampleSlip records one cadence-slipped sampling tick.
func (m *Metrics) RecordSampleSlip(ctx context.Context) {
	m.sampleSlips.Add(ctx, 1)
}

// RecordUploadSuccess records one successfully delivered measurement.
func (m *Metrics) RecordUploadSuccess(ctx context.Context) {
	m.uploadSuccess.Add(ctx, 1)
}

// RecordUploadFailure records one failed upload attempt.
func (m *Metrics) RecordUploadFailure(ctx context.Context) {
	m.uploadFailure.Add(ctx, 1)
}

// RecordUploadRetry records one upload retry.
func (m *Metrics) RecordUploadRetry(ctx context.Context) {
	m.uploadRetries.Add(ctx, 1)
}

// Shutdown flushes and releases the metrics provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// SetGlobal installs m as the process-wide metrics instance.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = m
}

// Global returns the process-wide metrics instance, or a no-op instance
// if none has been installed yet.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return noop()
	}
	return global
}

func noop() *Metrics {
	m := &Metrics{provider: sdkmetric.NewMeterProvider(), shutdown: func(context.Context) error { return nil }}
	m.meter = m.provider.Meter("pylon-agent")
	_ = m.registerInstruments()
	return m
}
