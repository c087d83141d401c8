// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/finsight/finsight/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/finsight/finsight"
)

// Metrics holds all application metrics
type Metrics struct {
	// Edit stream metrics
	EditStreamsTotal    metric.Int64Counter
	EditStreamDuration  metric.Float64Histogram
	ActiveEditStreams   metric.Int64UpDownCounter
	EditCommitsTotal    metric.Int64Counter
	EditFailuresTotal   metric.Int64Counter

	// Lock metrics
	LockAcquisitionsTotal metric.Int64Counter
	LockBusyTotal         metric.Int64Counter
	HeldLocks             metric.Int64UpDownCounter

	// Context budget metrics
	CompressionsTotal    metric.Int64Counter
	CompressionSavings   metric.Float64Histogram

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Return empty metrics to avoid nil pointer
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	m.EditStreamsTotal, err = meter.Int64Counter(
		"finsight_edit_streams_total",
		metric.WithDescription("Total number of streaming edits started"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	m.EditStreamDuration, err = meter.Float64Histogram(
		"finsight_edit_stream_duration_seconds",
		metric.WithDescription("Duration of streaming edits in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveEditStreams, err = meter.Int64UpDownCounter(
		"finsight_active_edit_streams",
		metric.WithDescription("Number of currently streaming edits"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	m.EditCommitsTotal, err = meter.Int64Counter(
		"finsight_edit_commits_total",
		metric.WithDescription("Total number of committed edits"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	m.EditFailuresTotal, err = meter.Int64Counter(
		"finsight_edit_failures_total",
		metric.WithDescription("Total number of failed edits by reason"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	m.LockAcquisitionsTotal, err = meter.Int64Counter(
		"finsight_lock_acquisitions_total",
		metric.WithDescription("Total number of successful edit lock acquisitions"),
		metric.WithUnit("{lock}"),
	)
	if err != nil {
		return nil, err
	}

	m.LockBusyTotal, err = meter.Int64Counter(
		"finsight_lock_busy_total",
		metric.WithDescription("Total number of lock acquisitions rejected as busy"),
		metric.WithUnit("{lock}"),
	)
	if err != nil {
		return nil, err
	}

	m.HeldLocks, err = meter.Int64UpDownCounter(
		"finsight_held_locks",
		metric.WithDescription("Number of currently held edit locks"),
		metric.WithUnit("{lock}"),
	)
	if err != nil {
		return nil, err
	}

	m.CompressionsTotal, err = meter.Int64Counter(
		"finsight_context_compressions_total",
		metric.WithDescription("Total number of context compressions"),
		metric.WithUnit("{compression}"),
	)
	if err != nil {
		return nil, err
	}

	m.CompressionSavings, err = meter.Float64Histogram(
		"finsight_context_compression_savings_percent",
		metric.WithDescription("Token savings percentage per compression"),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(-10, 0, 10, 25, 50, 75, 90),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"finsight_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"finsight_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordEditStream records the start of a streaming edit
func (m *Metrics) RecordEditStream(ctx context.Context, resourceType string) {
	if m.EditStreamsTotal == nil {
		return
	}
	m.EditStreamsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
	))
}

// RecordEditCommit records a committed edit
func (m *Metrics) RecordEditCommit(ctx context.Context, resourceType string) {
	if m.EditCommitsTotal == nil {
		return
	}
	m.EditCommitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
	))
}

// RecordStreamActive adjusts the active stream gauge
func (m *Metrics) RecordStreamActive(ctx context.Context, delta int64) {
	if m.ActiveEditStreams == nil {
		return
	}
	m.ActiveEditStreams.Add(ctx, delta)
}

// RecordStreamDuration records how long a streaming edit took
func (m *Metrics) RecordStreamDuration(ctx context.Context, seconds float64) {
	if m.EditStreamDuration == nil {
		return
	}
	m.EditStreamDuration.Record(ctx, seconds)
}

// RecordEditFailure records a failed edit with the failure reason
func (m *Metrics) RecordEditFailure(ctx context.Context, reason string) {
	if m.EditFailuresTotal == nil {
		return
	}
	m.EditFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordLockAcquired records a successful lock acquisition
func (m *Metrics) RecordLockAcquired(ctx context.Context) {
	if m.LockAcquisitionsTotal == nil || m.HeldLocks == nil {
		return
	}
	m.LockAcquisitionsTotal.Add(ctx, 1)
	m.HeldLocks.Add(ctx, 1)
}

// RecordLockBusy records a lock acquisition rejected as busy
func (m *Metrics) RecordLockBusy(ctx context.Context) {
	if m.LockBusyTotal == nil {
		return
	}
	m.LockBusyTotal.Add(ctx, 1)
}

// RecordLockReleased records a lock release or expiry
func (m *Metrics) RecordLockReleased(ctx context.Context) {
	if m.HeldLocks == nil {
		return
	}
	m.HeldLocks.Add(ctx, -1)
}

// RecordCompression records a context compression with its savings percentage
func (m *Metrics) RecordCompression(ctx context.Context, entityType string, savingsPercent float64) {
	if m.CompressionsTotal == nil || m.CompressionSavings == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("entity_type", entityType))
	m.CompressionsTotal.Add(ctx, 1, attrs)
	m.CompressionSavings.Record(ctx, savingsPercent, attrs)
}
