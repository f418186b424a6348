package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long storage calls take
// - Traffic: Task submission throughput
// - Errors: Rate of storage failures and retries
// - Saturation: Running tasks against the concurrency bound
type Metrics struct {
	meter metric.Meter

	// Task metrics (Traffic, Saturation)
	TasksSubmitted metric.Int64Counter
	TasksReused    metric.Int64Counter
	PollsTotal     metric.Int64Counter
	TasksRunning   metric.Int64Gauge

	// Storage metrics (Latency, Traffic, Errors)
	StorageOpDuration metric.Float64Histogram
	StorageOpsTotal   metric.Int64Counter
	StorageRetries    metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("kubeface")
	m := &Metrics{meter: meter}

	// Task metrics
	m.TasksSubmitted, err = meter.Int64Counter(
		"tasks_submitted_total",
		metric.WithDescription("Total number of tasks handed to a backend"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksReused, err = meter.Int64Counter(
		"tasks_reused_total",
		metric.WithDescription("Total number of tasks skipped because a cached result already existed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"poll_cycles_total",
		metric.WithDescription("Total number of completion poll cycles"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksRunning, err = meter.Int64Gauge(
		"tasks_running",
		metric.WithDescription("Tasks submitted but not yet completed, as of the last poll (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Storage metrics
	m.StorageOpDuration, err = meter.Float64Histogram(
		"storage_op_duration_seconds",
		metric.WithDescription("Storage operation latency in seconds, including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StorageOpsTotal, err = meter.Int64Counter(
		"storage_ops_total",
		metric.WithDescription("Total number of storage operations"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StorageRetries, err = meter.Int64Counter(
		"storage_retries_total",
		metric.WithDescription("Total number of storage call retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordTaskSubmitted records a task being handed to a backend.
func (m *Metrics) RecordTaskSubmitted(ctx context.Context, backend string) {
	m.TasksSubmitted.Add(ctx, 1, metric.WithAttributes(backendAttr(backend)))
}

// RecordTaskReused records a task skipped because its result already existed.
func (m *Metrics) RecordTaskReused(ctx context.Context) {
	m.TasksReused.Add(ctx, 1)
}

// RecordPoll records one completion poll cycle and the running-task count it
// observed.
func (m *Metrics) RecordPoll(ctx context.Context, running int) {
	m.PollsTotal.Add(ctx, 1)
	m.TasksRunning.Record(ctx, int64(running))
}

// RecordStorageOp records a completed storage operation with its duration.
func (m *Metrics) RecordStorageOp(ctx context.Context, op string, durationSeconds float64, success bool) {
	attrs := metric.WithAttributes(opAttr(op), successAttr(success))
	m.StorageOpDuration.Record(ctx, durationSeconds, attrs)
	m.StorageOpsTotal.Add(ctx, 1, attrs)
}

// RecordStorageRetry records a retried storage call.
func (m *Metrics) RecordStorageRetry(ctx context.Context, op string) {
	m.StorageRetries.Add(ctx, 1, metric.WithAttributes(opAttr(op)))
}
