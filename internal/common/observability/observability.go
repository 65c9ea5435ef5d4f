// internal/common/observability/observability.go
package observability

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Observability bundles the otel meter and tracer used by the wizard server
// and the worker manager.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *tracesdk.TracerProvider
	meter          otelmetric.Meter
	tracer         oteltrace.Tracer

	boundaryCounter  otelmetric.Int64Counter
	boundaryDuration otelmetric.Float64Histogram
}

// New wires a prometheus metric exporter and, when a collector endpoint is
// given, a jaeger trace exporter.
func New(serviceName, jaegerEndpoint string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	boundaryCounter, _ := meter.Int64Counter(
		"wizard.boundary_effects",
		otelmetric.WithDescription("Number of step-boundary effects executed"),
	)

	boundaryDuration, _ := meter.Float64Histogram(
		"wizard.boundary_effect.duration",
		otelmetric.WithDescription("Step-boundary effect duration"),
		otelmetric.WithUnit("ms"),
	)

	obs := &Observability{
		meterProvider:    provider,
		meter:            meter,
		boundaryCounter:  boundaryCounter,
		boundaryDuration: boundaryDuration,
	}

	if jaegerEndpoint != "" {
		traceExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			tp := tracesdk.NewTracerProvider(tracesdk.WithBatcher(traceExporter))
			otel.SetTracerProvider(tp)
			obs.tracerProvider = tp
			obs.tracer = tp.Tracer(serviceName)
		}
	}

	return obs
}

// RecordBoundaryEffect records one executed boundary effect.
func (o *Observability) RecordBoundaryEffect(ctx context.Context, step, status string, durationMs float64) {
	if o.boundaryCounter != nil {
		o.boundaryCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("step", step),
			attribute.String("status", status),
		))
	}
	if o.boundaryDuration != nil {
		o.boundaryDuration.Record(ctx, durationMs, otelmetric.WithAttributes(
			attribute.String("step", step),
		))
	}
}

// StartSpan starts a span when tracing is configured; otherwise it is a no-op.
func (o *Observability) StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	if o.tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name)
}

// Shutdown flushes and stops the providers.
func (o *Observability) Shutdown() {
	ctx := context.Background()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
