package prometheus

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/backend/software"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("drawsched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.TaskDispatched("vector")
	exporter.TaskCompleted("vector", 3*time.Millisecond)
	exporter.TaskFailed("vector")
	exporter.DispatchBusy("")
	exporter.TaskClipped()
	exporter.AllocationFailed()

	if got := testutil.ToFloat64(exporter.dispatchedTotal.WithLabelValues("vector")); got != 1 {
		t.Fatalf("dispatched = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.failedTotal.WithLabelValues("vector")); got != 1 {
		t.Fatalf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.busyTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("busy for empty unit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.clippedTotal); got != 1 {
		t.Fatalf("clipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.allocFailedTotal); got != 1 {
		t.Fatalf("alloc failed = %v, want 1", got)
	}

	count, err := histogramSampleCount(exporter.taskDuration.WithLabelValues("vector"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("duration sample count = %d, want 1", count)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("drawsched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("drawsched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.TaskClipped()
	second.TaskClipped()

	if got := testutil.ToFloat64(first.clippedTotal); got != 2 {
		t.Fatalf("shared clipped counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var m *MetricsExporter
	m.TaskDispatched("x")
	m.TaskCompleted("x", time.Second)
	m.TaskFailed("x")
	m.TaskClipped()
	m.DispatchBusy("x")
	m.AllocationFailed()
}

func TestMetricsExporter_WithRenderContext(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	cfg := drawsched.DefaultConfig()
	cfg.Synchronous = true
	rc, err := drawsched.New(
		drawsched.WithConfig(cfg),
		drawsched.WithBackends(software.New(cfg.Software)),
		drawsched.WithMetrics(exporter),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rc.Close()

	screen := image.Rect(0, 0, 64, 64)
	l, err := rc.NewLayer("root", screen)
	if err != nil {
		t.Fatalf("NewLayer failed: %v", err)
	}
	fill := drawsched.FillParams{Color: color.RGBA{G: 0xff, A: 0xff}, Opacity: drawsched.OpacityCover}
	if err := l.Submit(drawsched.NewFillTask(screen, screen, fill)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := l.Submit(drawsched.NewFillTask(image.Rect(100, 100, 110, 110), screen, fill)); err != nil {
		t.Fatalf("Submit clipped failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.FinishLayer(ctx, l); err != nil {
		t.Fatalf("FinishLayer failed: %v", err)
	}

	if got := testutil.ToFloat64(exporter.dispatchedTotal.WithLabelValues("software")); got != 1 {
		t.Fatalf("dispatched = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.clippedTotal); got != 1 {
		t.Fatalf("clipped = %v, want 1", got)
	}
	n, err := testutil.GatherAndCount(reg, "drawsched_task_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
