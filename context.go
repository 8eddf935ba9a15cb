package drawsched

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RenderContext owns the draw units and the layers being drawn, and runs
// the dispatcher that hands layer tasks to units.
//
// Dispatch is level-triggered: RequestDispatch wakes every goroutine
// blocked in Run or Wait, which then scan all layers against all units.
// Requests made while a scan is running are coalesced into one more scan.
//
// RenderContext is safe for concurrent use.
type RenderContext struct {
	cfg      Config
	log      *slog.Logger
	metrics  Metrics
	alloc    Allocator
	device   DeviceProvider
	fallback Backend
	units    []*Unit

	mu     sync.Mutex
	layers []*Layer

	wakeMu sync.Mutex
	wake   chan struct{}

	closed atomic.Bool
	done   chan struct{}

	stats counters
}

type counters struct {
	submitted   atomic.Uint64
	clipped     atomic.Uint64
	dispatched  atomic.Uint64
	completed   atomic.Uint64
	failed      atomic.Uint64
	busy        atomic.Uint64
	allocFailed atomic.Uint64
}

// New creates a render context with one unit per backend.
//
// At least one backend is required (see WithBackends). Package backend
// assembles the enabled backends from a Config.
func New(opts ...Option) (*RenderContext, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if len(o.backends) == 0 {
		return nil, ErrNoBackend
	}
	for i, b := range o.backends {
		if b == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilBackend, i)
		}
	}

	rc := &RenderContext{
		cfg:      o.cfg,
		log:      o.logger,
		metrics:  o.metrics,
		alloc:    o.alloc,
		device:   o.device,
		fallback: o.fallback,
		wake:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if rc.log == nil {
		rc.log = Logger()
	}
	if rc.alloc == nil {
		rc.alloc = NewHeapAllocator(rc.cfg.MemoryBudget, surfaceFormat(rc.device))
	}

	if rc.device != nil {
		for _, b := range o.backends {
			da, ok := b.(DeviceAware)
			if !ok {
				continue
			}
			if err := da.SetDevice(rc.device); err != nil {
				return nil, fmt.Errorf("drawsched: %s: set device: %w", b.Name(), err)
			}
		}
	}
	if rc.fallback != nil && !slices.Contains(o.backends, rc.fallback) {
		propagateLogger(rc.fallback, rc.log)
	}

	for i, b := range o.backends {
		u := newUnit(rc, i+1, b, rc.fallback, !rc.cfg.Synchronous)
		u.setLogger(rc.log)
		rc.units = append(rc.units, u)
		rc.log.Info("drawsched: unit registered", "id", u.ID(), "backend", b.Name())
	}
	rc.log.Info("drawsched: render context created",
		"units", len(rc.units),
		"synchronous", rc.cfg.Synchronous,
		"preserve_overlap_order", rc.cfg.PreserveOverlapOrder)
	return rc, nil
}

// Config returns the configuration the context was created with.
func (rc *RenderContext) Config() Config { return rc.cfg }

// Units returns the units in registration order.
func (rc *RenderContext) Units() []*Unit {
	return slices.Clone(rc.units)
}

// Allocator returns the layer buffer allocator.
func (rc *RenderContext) Allocator() Allocator { return rc.alloc }

// NewLayer creates a layer covering bounds.
func (rc *RenderContext) NewLayer(name string, bounds image.Rectangle) (*Layer, error) {
	if rc.closed.Load() {
		return nil, ErrClosed
	}
	if bounds.Empty() {
		return nil, fmt.Errorf("drawsched: layer %q has empty bounds %v", name, bounds)
	}
	l := newLayer(rc, name, bounds)
	rc.mu.Lock()
	rc.layers = append(rc.layers, l)
	rc.mu.Unlock()
	rc.log.Debug("drawsched: layer created", "layer", name, "id", l.ID().String(), "bounds", bounds.String())
	return l, nil
}

// ReleaseLayer frees the layer buffer and detaches the layer. The layer
// must have no unfinished tasks.
func (rc *RenderContext) ReleaseLayer(l *Layer) error {
	if err := l.release(); err != nil {
		return err
	}
	rc.mu.Lock()
	rc.layers = slices.DeleteFunc(rc.layers, func(x *Layer) bool { return x == l })
	rc.mu.Unlock()
	return nil
}

// RequestDispatch asks for a dispatch scan. It never blocks.
func (rc *RenderContext) RequestDispatch() {
	rc.wakeMu.Lock()
	close(rc.wake)
	rc.wake = make(chan struct{})
	rc.wakeMu.Unlock()
}

// wakeChan returns the channel closed by the next RequestDispatch.
func (rc *RenderContext) wakeChan() <-chan struct{} {
	rc.wakeMu.Lock()
	defer rc.wakeMu.Unlock()
	return rc.wake
}

// DispatchAll scans every layer, newest first, against every unit and
// returns the number of tasks claimed. Synchronous units run their tasks
// before DispatchAll returns.
func (rc *RenderContext) DispatchAll() int {
	if rc.closed.Load() {
		return 0
	}
	rc.mu.Lock()
	layers := slices.Clone(rc.layers)
	rc.mu.Unlock()
	slices.Reverse(layers)

	n := 0
	for _, l := range layers {
		n += rc.dispatchLayer(l)
	}
	return n
}

// DispatchLayer scans one layer against every unit.
func (rc *RenderContext) DispatchLayer(l *Layer) int {
	if rc.closed.Load() {
		return 0
	}
	return rc.dispatchLayer(l)
}

func (rc *RenderContext) dispatchLayer(l *Layer) int {
	l.prune()
	n := 0
	for _, u := range rc.units {
		for u.Dispatch(l) == DispatchClaimed {
			n++
		}
	}
	return n
}

// Run dispatches until ctx is done or the context is closed.
func (rc *RenderContext) Run(ctx context.Context) error {
	for {
		wake := rc.wakeChan()
		rc.DispatchAll()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rc.done:
			return ErrClosed
		case <-wake:
		}
	}
}

// Wait dispatches until every task submitted to l is Ready.
func (rc *RenderContext) Wait(ctx context.Context, l *Layer) error {
	for {
		wake := rc.wakeChan()
		rc.DispatchAll()
		if l.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rc.done:
			return ErrClosed
		case <-wake:
		}
	}
}

// FinishLayer waits for l and runs the layer-end barrier of every unit.
// After it returns, resources the units kept pending for l are released
// and the layer buffer holds the final pixels.
func (rc *RenderContext) FinishLayer(ctx context.Context, l *Layer) error {
	if err := rc.Wait(ctx, l); err != nil {
		return err
	}
	return rc.syncLayer(l)
}

// syncLayer runs the layer-end barrier of every unit and of the fallback.
func (rc *RenderContext) syncLayer(l *Layer) error {
	var errs []error
	for _, u := range rc.units {
		if err := u.syncLayer(l); err != nil {
			errs = append(errs, err)
		}
	}
	if ls, ok := rc.fallback.(LayerSyncer); ok && !rc.hasBackend(rc.fallback) {
		if err := ls.SyncLayer(l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rc *RenderContext) hasBackend(b Backend) bool {
	for _, u := range rc.units {
		if u.backend == b {
			return true
		}
	}
	return false
}

// Stats returns a snapshot of the context counters.
func (rc *RenderContext) Stats() Stats {
	return Stats{
		Submitted:   rc.stats.submitted.Load(),
		Clipped:     rc.stats.clipped.Load(),
		Dispatched:  rc.stats.dispatched.Load(),
		Completed:   rc.stats.completed.Load(),
		Failed:      rc.stats.failed.Load(),
		Busy:        rc.stats.busy.Load(),
		AllocFailed: rc.stats.allocFailed.Load(),
	}
}

// Close stops the units and closes their backends. Tasks in flight finish
// first; queued tasks are abandoned. Close is idempotent.
func (rc *RenderContext) Close() error {
	if !rc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(rc.done)

	var g errgroup.Group
	for _, u := range rc.units {
		g.Go(u.Close)
	}
	err := g.Wait()

	rc.mu.Lock()
	for _, l := range rc.layers {
		l.mu.Lock()
		if l.buf != nil {
			rc.alloc.FreeLayerBuffer(l.buf)
			l.buf = nil
		}
		l.released = true
		l.mu.Unlock()
	}
	rc.layers = nil
	rc.mu.Unlock()

	rc.log.Info("drawsched: render context closed")
	return err
}
