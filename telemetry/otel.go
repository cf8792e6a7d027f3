// Package telemetry provides the gateway's concrete core.Telemetry
// implementation (spec.md §3 ambient stack): an OpenTelemetry tracer
// whose spans are exported via OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT
// is set, and to stdout otherwise (grounded on the teacher's
// pkg/telemetry/otel.go auto-configuration convention: endpoint absent
// means a local/noop-leaning exporter, never a hard failure). Metrics go
// to the meter of the global OpenTelemetry meter provider; this package
// installs no meter provider or metric exporter.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Miles0sage/agentgate/core"
)

// Provider implements core.Telemetry with an OpenTelemetry tracer and
// meter. One Provider is built per process and shared across the router,
// the adapter pool, the dispatcher, and the orchestrator.
type Provider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// NewProvider builds a Provider for serviceName. If OTEL_EXPORTER_OTLP_ENDPOINT
// is set, spans export via OTLP/gRPC to that collector; otherwise they
// print to stdout, which keeps local development and tests working
// without a collector running.
func NewProvider(serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		attribute.String("gateway.component", "agent-gateway"),
	)

	tp, err := newTraceProvider(res)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:        tp.Tracer("agentgate"),
		meter:         otel.Meter("agentgate"),
		traceProvider: tp,
		counters:      make(map[string]metric.Float64Counter),
	}, nil
}

func newTraceProvider(res *resource.Resource) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter for %s: %w", endpoint, err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// StartSpan satisfies core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	spanCtx, span := p.tracer.Start(ctx, name)
	return spanCtx, &otelSpan{span: span}
}

// RecordMetric satisfies core.Telemetry, lazily creating one counter
// instrument per metric name.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	counter := p.counterFor(name)
	if counter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (p *Provider) counterFor(name string) metric.Float64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil
	}
	p.counters[name] = c
	return c
}

// Shutdown flushes pending spans. Callers invoke it once at process exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.traceProvider.Shutdown(shutdownCtx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
