// Package prometheus exports scheduler metrics to Prometheus.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/drawsched"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts drawsched.Metrics to Prometheus collectors.
type MetricsExporter struct {
	dispatchedTotal  *prom.CounterVec
	taskDuration     *prom.HistogramVec
	failedTotal      *prom.CounterVec
	busyTotal        *prom.CounterVec
	clippedTotal     prom.Counter
	allocFailedTotal prom.Counter
}

var _ drawsched.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers the collectors. An empty
// namespace uses "drawsched"; a nil registerer uses the default one.
// Collectors already registered by an earlier exporter are shared.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "drawsched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.0001, 4, 8)
	}

	dispatched := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_dispatched_total",
		Help:      "Total number of tasks claimed by a draw unit.",
	}, []string{"unit"})
	duration := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time from dispatch to Ready, in seconds.",
		Buckets:   buckets,
	}, []string{"unit"})
	failed := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_failed_total",
		Help:      "Total number of tasks a backend failed to draw.",
	}, []string{"unit"})
	busy := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_busy_total",
		Help:      "Total number of dispatches refused by a busy unit.",
	}, []string{"unit"})
	clipped := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_clipped_total",
		Help:      "Total number of tasks dropped at submission because they were fully clipped.",
	})
	allocFailed := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "allocation_failed_total",
		Help:      "Total number of failed layer buffer allocations.",
	})

	var err error
	if dispatched, err = registerCollector(reg, dispatched); err != nil {
		return nil, err
	}
	if duration, err = registerCollector(reg, duration); err != nil {
		return nil, err
	}
	if failed, err = registerCollector(reg, failed); err != nil {
		return nil, err
	}
	if busy, err = registerCollector(reg, busy); err != nil {
		return nil, err
	}
	if clipped, err = registerCollector(reg, clipped); err != nil {
		return nil, err
	}
	if allocFailed, err = registerCollector(reg, allocFailed); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		dispatchedTotal:  dispatched,
		taskDuration:     duration,
		failedTotal:      failed,
		busyTotal:        busy,
		clippedTotal:     clipped,
		allocFailedTotal: allocFailed,
	}, nil
}

// TaskDispatched implements drawsched.Metrics.
func (m *MetricsExporter) TaskDispatched(unit string) {
	if m == nil {
		return
	}
	m.dispatchedTotal.WithLabelValues(normalizeLabel(unit, "unknown")).Inc()
}

// TaskCompleted implements drawsched.Metrics.
func (m *MetricsExporter) TaskCompleted(unit string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(normalizeLabel(unit, "unknown")).Observe(d.Seconds())
}

// TaskFailed implements drawsched.Metrics.
func (m *MetricsExporter) TaskFailed(unit string) {
	if m == nil {
		return
	}
	m.failedTotal.WithLabelValues(normalizeLabel(unit, "unknown")).Inc()
}

// TaskClipped implements drawsched.Metrics.
func (m *MetricsExporter) TaskClipped() {
	if m == nil {
		return
	}
	m.clippedTotal.Inc()
}

// DispatchBusy implements drawsched.Metrics.
func (m *MetricsExporter) DispatchBusy(unit string) {
	if m == nil {
		return
	}
	m.busyTotal.WithLabelValues(normalizeLabel(unit, "unknown")).Inc()
}

// AllocationFailed implements drawsched.Metrics.
func (m *MetricsExporter) AllocationFailed() {
	if m == nil {
		return
	}
	m.allocFailedTotal.Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("prometheus: collector type mismatch for %T", collector)
		}
		return existing, nil
	}
	return collector, err
}
