// Package observability wires the OpenTelemetry meter and tracer providers
// used by the worker process.
package observability

import (
	"context"
	"time"

	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	serviceName    string
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
}

// New registers the meter provider on the default Prometheus registry.
func New(serviceName string, cfg config.TracingConfig, log logger.Logger) *Observability {
	return NewWithRegisterer(serviceName, cfg, prometheus.DefaultRegisterer, log)
}

// NewWithRegisterer is New with an explicit Prometheus registerer. Setup
// failures are logged and leave the affected provider disabled.
func NewWithRegisterer(serviceName string, cfg config.TracingConfig, reg prometheus.Registerer, log logger.Logger) *Observability {
	o := &Observability{
		serviceName: serviceName,
		tracer:      otel.Tracer(serviceName),
	}

	// Dotted instrument names are exported in Prometheus underscore form.
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(reg),
		otelprom.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	)
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err.Error()})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)

		meter := o.meterProvider.Meter(serviceName)
		o.jobCounter, _ = meter.Int64Counter(
			"report.jobs.processed",
			otelmetric.WithDescription("Number of report jobs processed"),
		)
		o.jobDuration, _ = meter.Float64Histogram(
			"report.jobs.duration",
			otelmetric.WithDescription("Report job processing duration"),
			otelmetric.WithUnit("ms"),
		)
	}

	if cfg.JaegerEndpoint != "" {
		if tp, err := newTracerProvider(serviceName, cfg); err != nil {
			log.Warn("Tracing disabled, failed to create Jaeger exporter", map[string]interface{}{
				"endpoint": cfg.JaegerEndpoint,
				"error":    err.Error(),
			})
		} else {
			o.tracerProvider = tp
			otel.SetTracerProvider(tp)
			o.tracer = tp.Tracer(serviceName)
			log.Info("Tracing initialized", map[string]interface{}{
				"endpoint":    cfg.JaegerEndpoint,
				"sampleRatio": cfg.SampleRatio,
			})
		}
	}

	return o
}

func newTracerProvider(serviceName string, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	), nil
}

// TracingEnabled reports whether spans are exported.
func (o *Observability) TracingEnabled() bool {
	return o.tracerProvider != nil
}

// StartSpan starts a span on the service tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

// Shutdown flushes pending spans and metrics.
func (o *Observability) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
