package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names both the tracer and the meter.
const instrumentationName = "minmax"

// Providers is what a minmax run records telemetry through.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Registry holds the Prometheus view of Meter. Nil unless
	// Config.MetricsFile is set.
	Registry *prometheus.Registry

	// Shutdown writes the metrics file, then flushes and stops the
	// exporters. Call it once, before the process exits.
	Shutdown func(ctx context.Context) error
}

type closer func(ctx context.Context) error

// Init builds the logger, tracer, and meter for one run. Exporters are only
// created for the sinks cfg names; everything else is a no-op.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()
	res := resource.NewSchemaless(serviceAttrs(cfg)...)
	target := otlpTarget{endpoint: cfg.OTLPEndpoint, headers: cfg.OTLPHeaders, insecure: cfg.OTLPInsecure}

	tp, stopTraces, err := newTracerProvider(ctx, target, cfg.SampleRatio, res)
	if err != nil {
		return Providers{}, err
	}

	mp, registry, stopMetrics, err := newMeterProvider(ctx, target, cfg.MetricsFile != "", res)
	if err != nil {
		return Providers{}, errors.Join(err, stopTraces(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	shutdown := func(parent context.Context) error {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		// The Prometheus reader collects from the meter provider, so the
		// file must be written while the provider is still running.
		return errors.Join(
			writeMetricsFile(cfg.MetricsFile, registry),
			stopTraces(ctx),
			stopMetrics(ctx),
		)
	}

	return Providers{
		Tracer:   tp.Tracer(instrumentationName),
		Meter:    mp.Meter(instrumentationName),
		Logger:   newLogger(cfg),
		Registry: registry,
		Shutdown: shutdown,
	}, nil
}

func serviceAttrs(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	return attrs
}

// otlpTarget is the collector both OTLP exporters send to.
type otlpTarget struct {
	headers  map[string]string
	endpoint string
	insecure bool
}

func (o otlpTarget) enabled() bool { return o.endpoint != "" }

func (o otlpTarget) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(o.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(o.headers))
	}

	return opts
}

func (o otlpTarget) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(o.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(o.headers))
	}

	return opts
}

func nothingToClose(context.Context) error { return nil }

// newTracerProvider samples every root span unless ratio is in (0, 1];
// child spans follow their parent.
func newTracerProvider(
	ctx context.Context, target otlpTarget, ratio float64, res *resource.Resource,
) (trace.TracerProvider, closer, error) {
	if !target.enabled() {
		return nooptrace.NewTracerProvider(), nothingToClose, nil
	}

	exporter, err := otlptracegrpc.New(ctx, target.traceOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	root := sdktrace.AlwaysSample()
	if ratio > 0 {
		root = sdktrace.TraceIDRatioBased(ratio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(root)),
	)

	return tp, tp.Shutdown, nil
}

// newMeterProvider attaches a Prometheus reader when withRegistry is set and
// a periodic OTLP reader when target is enabled.
func newMeterProvider(
	ctx context.Context, target otlpTarget, withRegistry bool, res *resource.Resource,
) (metric.MeterProvider, *prometheus.Registry, closer, error) {
	var (
		readers  []sdkmetric.Option
		registry *prometheus.Registry
	)

	if withRegistry {
		registry = prometheus.NewRegistry()

		reader, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		readers = append(readers, sdkmetric.WithReader(reader))
	}

	if target.enabled() {
		exporter, err := otlpmetricgrpc.New(ctx, target.metricOptions()...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create metric exporter: %w", err)
		}

		readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	if len(readers) == 0 {
		return noopmetric.NewMeterProvider(), nil, nothingToClose, nil
	}

	mp := sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)

	return mp, registry, mp.Shutdown, nil
}

func newLogger(cfg Config) *slog.Logger {
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(NewTracingHandler(handler, cfg.ServiceName, cfg.ServiceVersion))
}

func writeMetricsFile(path string, registry *prometheus.Registry) error {
	if path == "" || registry == nil {
		return nil
	}

	err := prometheus.WriteToTextfile(path, registry)
	if err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}

	return nil
}
