// Package metrics holds the OpenTelemetry instruments recorded by the storage layer.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "tua-storage"

// Metrics holds all storage metric instruments.
type Metrics struct {
	Hits       metric.Int64Counter
	Misses     metric.Int64Counter
	Syncs      metric.Int64Counter
	SyncErrors metric.Int64Counter
	Evictions  metric.Int64Counter
}

// New creates all metric instruments on the given provider.
// A nil provider uses the global OpenTelemetry meter provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Hits, err = meter.Int64Counter("tua_storage.load.hits",
		metric.WithDescription("Loads answered from a fresh record"))
	if err != nil {
		return nil, err
	}

	m.Misses, err = meter.Int64Counter("tua_storage.load.misses",
		metric.WithDescription("Loads that found no fresh record"))
	if err != nil {
		return nil, err
	}

	m.Syncs, err = meter.Int64Counter("tua_storage.sync.calls",
		metric.WithDescription("Sync function invocations"))
	if err != nil {
		return nil, err
	}

	m.SyncErrors, err = meter.Int64Counter("tua_storage.sync.errors",
		metric.WithDescription("Sync function invocations that failed"))
	if err != nil {
		return nil, err
	}

	m.Evictions, err = meter.Int64Counter("tua_storage.sweep.evictions",
		metric.WithDescription("Records evicted from the in-memory index by the sweep"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	// The noop provider never fails to create instruments.
	m, _ := New(noop.NewMeterProvider())
	return m
}

// Hit records a fresh read.
func (m *Metrics) Hit(ctx context.Context) { m.Hits.Add(ctx, 1) }

// Miss records an absent or expired read.
func (m *Metrics) Miss(ctx context.Context) { m.Misses.Add(ctx, 1) }

// Sync records a sync function call and, when err is non-nil, its failure.
func (m *Metrics) Sync(ctx context.Context, err error) {
	m.Syncs.Add(ctx, 1)
	if err != nil {
		m.SyncErrors.Add(ctx, 1)
	}
}

// Evicted records n sweep evictions.
func (m *Metrics) Evicted(ctx context.Context, n int) {
	if n > 0 {
		m.Evictions.Add(ctx, int64(n))
	}
}
