package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/straja-ai/harassguard/internal/redact"
)

const instrumentationName = "harassguard"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	analysesCounter       metric.Int64Counter
	analysisDuration      metric.Float64Histogram
	inferenceDuration     metric.Float64Histogram
	modelUnavailable      metric.Int64Counter
	categoriesCounter     metric.Int64Counter
	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTLP exporters and providers. When disabled it
// returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return Noop(), nil
	}

	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if protocol != "" && protocol != "grpc" && protocol != "http" {
		return nil, fmt.Errorf("unsupported telemetry protocol %q", cfg.Protocol)
	}

	redact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s; if no collector is listening, periodic 'failed to upload metrics' warnings are expected", protocol, cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch protocol {
	case "", "grpc":
		traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
	case "http":
		traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, err
		}
		metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
	}
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:               true,
		tracer:                tp.Tracer(instrumentationName),
		meter:                 mp.Meter(instrumentationName),
		shutdownTraceProvider: tp.Shutdown,
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

// Noop returns a provider whose tracer and instruments discard everything.
func Noop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  noop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

func (p *Provider) initInstruments() {
	// Instrument errors are ignored; telemetry is best-effort.
	p.analysesCounter, _ = p.meter.Int64Counter("harassguard_analyses_total")
	p.analysisDuration, _ = p.meter.Float64Histogram("harassguard_analysis_duration_ms")
	p.inferenceDuration, _ = p.meter.Float64Histogram("harassguard_model_inference_duration_ms")
	p.modelUnavailable, _ = p.meter.Int64Counter("harassguard_model_unavailable_total")
	p.categoriesCounter, _ = p.meter.Int64Counter("harassguard_categories_detected_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return noop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// AnalysisMetrics is the per-analysis data recorded as metrics. It carries
// labels only, never incident text.
type AnalysisMetrics struct {
	Likely       bool
	DecisionPath string
	DurationMs   float64
	Categories   []string
}

// RecordAnalysis emits the analysis counters and histograms.
func (p *Provider) RecordAnalysis(ctx context.Context, m AnalysisMetrics) {
	if p == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("likely", strconv.FormatBool(m.Likely)),
		attribute.String("decision_path", m.DecisionPath),
	)
	p.analysesCounter.Add(ctx, 1, labels)
	p.analysisDuration.Record(ctx, m.DurationMs, labels)
	for _, c := range m.Categories {
		p.categoriesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("category", c)))
	}
}

// RecordInference records the latency of one model call.
func (p *Provider) RecordInference(ctx context.Context, model string, durMs float64) {
	if p == nil {
		return
	}
	p.inferenceDuration.Record(ctx, durMs, metric.WithAttributes(attribute.String("model", model)))
}

// RecordModelUnavailable counts calls where a model gave no signal.
func (p *Provider) RecordModelUnavailable(ctx context.Context, model string) {
	if p == nil {
		return
	}
	p.modelUnavailable.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}
