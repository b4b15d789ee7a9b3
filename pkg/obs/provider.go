package obs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ProviderConfig configures the OTel-backed Provider.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Insecure       bool
	SampleRate     float64
	BatchTimeout   time.Duration
}

// DefaultProviderConfig mirrors the control plane's deployment defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		ServiceName:    "corectl",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider wires OpenTelemetry tracing and RED metrics, grounded on the
// same exporter stack (otlptracegrpc/otlpmetricgrpc) used elsewhere in this
// codebase's observability layer.
type Provider struct {
	cfg            ProviderConfig
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// NewProvider builds and starts a Provider against cfg's OTLP endpoint.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("corectl.component", "run-control-plane"),
	))
	if err != nil {
		return nil, fmt.Errorf("obs: building resource: %w", err)
	}

	p := &Provider{cfg: cfg}

	tp, err := p.initTraceProvider(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("obs: init trace provider: %w", err)
	}
	p.tracerProvider = tp

	mp, err := p.initMeterProvider(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("obs: init meter provider: %w", err)
	}
	p.meterProvider = mp

	p.tracer = tp.Tracer(cfg.ServiceName)
	p.meter = mp.Meter(cfg.ServiceName)
	if err := p.initREDMetrics(); err != nil {
		return nil, fmt.Errorf("obs: init RED metrics: %w", err)
	}
	return p, nil
}

func (p *Provider) initTraceProvider(_ context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.cfg.OTLPEndpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case p.cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.cfg.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func (p *Provider) initMeterProvider(_ context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(context.Background(),
		otlpmetricgrpc.WithEndpoint(p.cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	p.requestCounter, err = p.meter.Int64Counter("corectl.requests.total")
	if err != nil {
		return err
	}
	p.errorCounter, err = p.meter.Int64Counter("corectl.errors.total")
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("corectl.request.duration",
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10))
	if err != nil {
		return err
	}
	p.activeOperations, err = p.meter.Int64UpDownCounter("corectl.operations.active")
	return err
}

// Shutdown drains exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}

// StartSpan starts a new span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

// TrackOperation starts a span + RED bookkeeping and returns a stop
// function, matching §4.9's startTimer()→stop() shape.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := p.StartSpan(ctx, name, trace.WithAttributes(attrs...))
	p.activeOperations.Add(ctx, 1)
	p.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		p.activeOperations.Add(ctx, -1)
		p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		if err != nil {
			span.RecordError(err)
			p.errorCounter.Add(ctx, 1, metric.WithAttributes(append(attrs,
				attribute.String("error.type", fmt.Sprintf("%T", err)))...))
		}
		span.End()
	}
}
