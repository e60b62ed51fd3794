// Package metrics exposes titankv operation metrics through OpenTelemetry,
// exported in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the titankv instruments.
type Metrics struct {
	Ops       metric.Int64Counter
	Duration  metric.Float64Histogram
	Hits      metric.Int64Counter
	Misses    metric.Int64Counter
	Published metric.Int64Counter

	provider *sdkmetric.MeterProvider
}

// Setup registers the instruments on a fresh Prometheus registry and returns
// the handler serving it. The provider also becomes the global otel meter
// provider.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	m.provider = provider

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, _ := newMetrics(noop.NewMeterProvider().Meter("titankv"))
	return m
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Ops, err = meter.Int64Counter(
		"titankv_ops_total",
		metric.WithDescription("Total number of database operations"),
	)
	if err != nil {
		return nil, err
	}

	m.Duration, err = meter.Float64Histogram(
		"titankv_op_duration_seconds",
		metric.WithDescription("Operation duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.Hits, err = meter.Int64Counter(
		"titankv_hits_total",
		metric.WithDescription("Total number of key lookups that found a value"),
	)
	if err != nil {
		return nil, err
	}

	m.Misses, err = meter.Int64Counter(
		"titankv_misses_total",
		metric.WithDescription("Total number of key lookups that found nothing"),
	)
	if err != nil {
		return nil, err
	}

	m.Published, err = meter.Int64Counter(
		"titankv_published_total",
		metric.WithDescription("Total number of pub/sub deliveries"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOp counts one operation and records its duration.
func (m *Metrics) RecordOp(ctx context.Context, op string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.Ops.Add(ctx, 1, attrs)
	m.Duration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHit counts a Get that found its key.
func (m *Metrics) RecordHit(ctx context.Context) {
	m.Hits.Add(ctx, 1)
}

// RecordMiss counts a Get that did not.
func (m *Metrics) RecordMiss(ctx context.Context) {
	m.Misses.Add(ctx, 1)
}

// RecordPublish counts a publish and how many listeners received it.
func (m *Metrics) RecordPublish(ctx context.Context, channel string, delivered int) {
	m.Published.Add(ctx, int64(delivered), metric.WithAttributes(attribute.String("channel", channel)))
}

// Shutdown flushes and stops the meter provider created by Setup.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
