package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/eol-sync/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for sync passes
type SyncMetrics struct {
	passDuration   metric.Float64Histogram
	serviceUpdates metric.Int64Counter
	eolPackages    metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	passDuration, err := meter.Float64Histogram(
		"eol_sync_pass_duration_seconds",
		metric.WithDescription("Duration of sync passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	serviceUpdates, err := meter.Int64Counter(
		"eol_sync_service_updates_total",
		metric.WithDescription("Number of service update attempts by outcome"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	eolPackages, err := meter.Int64Gauge(
		"eol_sync_service_eol_packages",
		metric.WithDescription("Number of end-of-life frameworks used by each service"),
		metric.WithUnit("{framework}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		passDuration:   passDuration,
		serviceUpdates: serviceUpdates,
		eolPackages:    eolPackages,
	}, nil
}

// RecordPass records the duration of a pass. stage is the stage a failed pass stopped in,
// and is empty on success.
func (m *SyncMetrics) RecordPass(ctx context.Context, duration time.Duration, success bool, stage string) {
	if m == nil || m.passDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	if stage != "" {
		attrs = append(attrs, attribute.String("stage", stage))
	}

	m.passDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordServiceUpdates adds update outcomes for one pass
func (m *SyncMetrics) RecordServiceUpdates(ctx context.Context, updated, failed int) {
	if m == nil || m.serviceUpdates == nil {
		return
	}

	if updated > 0 {
		m.serviceUpdates.Add(ctx, int64(updated), metric.WithAttributes(attribute.String("outcome", "updated")))
	}
	if failed > 0 {
		m.serviceUpdates.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
	}
}

// RecordEOLCount records the computed EOL count for one service
func (m *SyncMetrics) RecordEOLCount(ctx context.Context, serviceID string, count int) {
	if m == nil || m.eolPackages == nil {
		return
	}

	m.eolPackages.Record(ctx, int64(count), metric.WithAttributes(attribute.String("service", serviceID)))
}
