package drawsched

import "log/slog"

// Option configures a RenderContext during creation.
//
// Example:
//
//	rc, err := drawsched.New(
//		drawsched.WithBackends(blit, vg, sw),
//		drawsched.WithFallback(sw),
//		drawsched.WithLogger(slog.Default()),
//	)
type Option func(*options)

type options struct {
	cfg      Config
	logger   *slog.Logger
	alloc    Allocator
	metrics  Metrics
	backends []Backend
	fallback Backend
	device   DeviceProvider
}

func defaultOptions() options {
	return options{
		cfg:     DefaultConfig(),
		metrics: NopMetrics{},
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger of the context and its backends.
// Without it the package logger (see SetLogger) is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithAllocator sets the layer buffer allocator. The default is a
// HeapAllocator limited to Config.MemoryBudget.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithBackends appends backends. Each backend becomes a unit; unit ids
// follow the order of the calls, and tasks are offered to units in that
// order.
func WithBackends(b ...Backend) Option {
	return func(o *options) {
		o.backends = append(o.backends, b...)
	}
}

// WithFallback sets the backend that redraws a task when its unit's
// backend fails. It is usually the software backend. The fallback may be
// called from several units at once and must be safe for concurrent use.
func WithFallback(b Backend) Option {
	return func(o *options) {
		o.fallback = b
	}
}

// WithDevice shares the host GPU device with backends implementing
// DeviceAware. The device's surface format becomes the default buffer
// format.
func WithDevice(p DeviceProvider) Option {
	return func(o *options) {
		o.device = p
	}
}
