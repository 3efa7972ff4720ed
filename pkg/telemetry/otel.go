package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig configures the OpenTelemetry export pipeline.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC, e.g. "localhost:4317"
	SampleRate     float64
	BatchTimeout   time.Duration
	Insecure       bool
}

// DefaultOTelConfig returns development defaults.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "blueprint-sdui",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Insecure:       true,
	}
}

// Provider owns the OTel trace and metric providers for the SDUI core.
type Provider struct {
	config         *OTelConfig
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	pagesGenerated metric.Int64Counter
	cacheHits      metric.Int64Counter
	actionErrors   metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// NewProvider wires the OTLP exporters and instruments.
func NewProvider(ctx context.Context, config *OTelConfig) (*Provider, error) {
	if config == nil {
		config = DefaultOTelConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "telemetry"),
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("blueprint.component", "sdui-core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraces(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetrics(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("blueprint.sdui",
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter("blueprint.sdui",
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry pipeline initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraces(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.pagesGenerated, err = p.meter.Int64Counter("blueprint.pages.generated",
		metric.WithDescription("Pages generated (cache misses)"),
		metric.WithUnit("{page}"))
	if err != nil {
		return err
	}
	p.cacheHits, err = p.meter.Int64Counter("blueprint.cache.hits",
		metric.WithDescription("Page cache hits"),
		metric.WithUnit("{hit}"))
	if err != nil {
		return err
	}
	p.actionErrors, err = p.meter.Int64Counter("blueprint.actions.errors",
		metric.WithDescription("Failed action dispatches"),
		metric.WithUnit("{error}"))
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("blueprint.operation.duration",
		metric.WithDescription("Span duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0))
	return err
}

// Shutdown flushes and stops the export pipeline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "meter provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Recorder returns a Recorder that buffers locally like MemoryRecorder and
// mirrors every span and event onto the OTel pipeline.
func (p *Provider) Recorder() Recorder {
	return &bridgeRecorder{
		inner:    NewMemoryRecorder(),
		provider: p,
		open:     make(map[string]trace.Span),
	}
}

// bridgeRecorder decorates a MemoryRecorder with OTel export. The inner
// buffer stays authoritative for Summary so behavior with and without an
// export pipeline is identical.
type bridgeRecorder struct {
	inner    *MemoryRecorder
	provider *Provider

	mu   sync.Mutex
	open map[string]trace.Span
}

func (b *bridgeRecorder) StartSpan(id, kind string) {
	b.inner.StartSpan(id, kind)
	if !b.inner.Enabled() {
		return
	}
	_, span := b.provider.tracer.Start(context.Background(), kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("span.id", id)),
	)
	b.mu.Lock()
	b.open[id] = span
	b.mu.Unlock()
}

func (b *bridgeRecorder) EndSpan(id, kind string) {
	b.inner.EndSpan(id, kind)
	b.mu.Lock()
	span, ok := b.open[id]
	delete(b.open, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	span.End()
	spans := b.inner.Spans()
	if len(spans) > 0 {
		last := spans[len(spans)-1]
		if last.ID == id && b.provider.durationHist != nil {
			b.provider.durationHist.Record(context.Background(),
				last.Duration.Seconds(),
				metric.WithAttributes(attribute.String("kind", kind)))
		}
	}
}

func (b *bridgeRecorder) RecordEvent(e Event) {
	b.inner.RecordEvent(e)
	if !b.inner.Enabled() {
		return
	}
	ctx := context.Background()
	switch e.Kind {
	case EventCacheHit:
		if b.provider.cacheHits != nil {
			b.provider.cacheHits.Add(ctx, 1)
		}
	case EventCacheMiss:
		if b.provider.pagesGenerated != nil {
			b.provider.pagesGenerated.Add(ctx, 1)
		}
	case EventUnknown:
		if b.provider.actionErrors != nil {
			b.provider.actionErrors.Add(ctx, 1)
		}
	}
}

func (b *bridgeRecorder) Summary() Summary { return b.inner.Summary() }

func (b *bridgeRecorder) Clear() { b.inner.Clear() }

func (b *bridgeRecorder) SetEnabled(enabled bool) { b.inner.SetEnabled(enabled) }

func (b *bridgeRecorder) Enabled() bool { return b.inner.Enabled() }
