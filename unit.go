package drawsched

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/drawsched/internal/worker"
)

// DispatchResult is the outcome of DrawUnit.Dispatch.
type DispatchResult int

const (
	// DispatchIdle means the layer has no task the unit may run.
	DispatchIdle DispatchResult = iota
	// DispatchBusy means the unit is running a task; nothing changed.
	DispatchBusy
	// DispatchClaimed means the unit took a task.
	DispatchClaimed
	// DispatchFailed means a task was found but its layer buffer could not
	// be allocated. The task stays Queued.
	DispatchFailed
)

// String returns the result name.
func (r DispatchResult) String() string {
	switch r {
	case DispatchIdle:
		return "idle"
	case DispatchBusy:
		return "busy"
	case DispatchClaimed:
		return "claimed"
	case DispatchFailed:
		return "failed"
	default:
		return fmt.Sprintf("DispatchResult(%d)", int(r))
	}
}

// DrawUnit is a drawing engine that competes for the tasks of a layer.
type DrawUnit interface {
	// ID returns the unit id. Ids start at 1.
	ID() int
	Name() string

	// Evaluate offers the unit's score for t and reports whether it won.
	Evaluate(t *DrawTask) bool

	// Dispatch claims the best task of l the unit may run. A busy unit
	// returns DispatchBusy without side effects.
	Dispatch(l *Layer) DispatchResult

	// Busy reports whether a task is in flight.
	Busy() bool

	Close() error
}

// Unit runs the tasks of one Backend, one at a time.
type Unit struct {
	id       int
	backend  Backend
	fallback Backend
	rc       *RenderContext
	worker   *worker.Worker // nil: execute in the dispatching goroutine

	// dispatchMu serializes the busy check with the claim.
	dispatchMu sync.Mutex

	// execMu is held while the backend draws or synchronizes so that its
	// caches have a single owner.
	execMu sync.Mutex

	// taskAct is the task in flight, nil when idle.
	taskAct atomic.Pointer[DrawTask]
}

var _ DrawUnit = (*Unit)(nil)

func newUnit(rc *RenderContext, id int, b, fallback Backend, threaded bool) *Unit {
	u := &Unit{
		id:       id,
		backend:  b,
		fallback: fallback,
		rc:       rc,
	}
	if threaded {
		u.worker = worker.New(fmt.Sprintf("drawsched-%s-%d", b.Name(), id))
	}
	return u
}

// ID implements DrawUnit.
func (u *Unit) ID() int { return u.id }

// Name implements DrawUnit.
func (u *Unit) Name() string { return u.backend.Name() }

// Backend returns the backend the unit drives.
func (u *Unit) Backend() Backend { return u.backend }

// Busy implements DrawUnit.
func (u *Unit) Busy() bool { return u.taskAct.Load() != nil }

// Current returns the task in flight, or nil.
func (u *Unit) Current() *DrawTask { return u.taskAct.Load() }

// Evaluate implements DrawUnit. The score can only decrease: a unit that
// rejects t or scores it no better than the current offer changes nothing.
func (u *Unit) Evaluate(t *DrawTask) bool {
	score, ok := u.backend.Evaluate(t)
	if !ok {
		return false
	}
	return t.Offer(u.id, score)
}

// Dispatch implements DrawUnit.
func (u *Unit) Dispatch(l *Layer) DispatchResult {
	u.dispatchMu.Lock()
	if u.taskAct.Load() != nil {
		u.dispatchMu.Unlock()
		u.rc.metrics.DispatchBusy(u.Name())
		u.rc.stats.busy.Add(1)
		return DispatchBusy
	}

	t, err := l.claim(u.id)
	if err != nil {
		u.dispatchMu.Unlock()
		u.rc.log.Warn("drawsched: layer buffer allocation failed",
			"unit", u.Name(), "layer", l.Name(), "err", err)
		u.rc.metrics.AllocationFailed()
		u.rc.stats.allocFailed.Add(1)
		return DispatchFailed
	}
	if t == nil {
		u.dispatchMu.Unlock()
		return DispatchIdle
	}
	u.taskAct.Store(t)
	u.dispatchMu.Unlock()

	u.rc.metrics.TaskDispatched(u.Name())
	u.rc.stats.dispatched.Add(1)
	u.rc.log.Debug("drawsched: task dispatched",
		"unit", u.Name(), "layer", l.Name(), "kind", t.kind.String(), "score", t.Score())

	start := time.Now()
	job := func() { u.run(l, t, start) }
	if u.worker == nil || u.worker.Post(job) != nil {
		job()
	}
	return DispatchClaimed
}

// run executes t and completes it. It never panics.
//
// A layer task first synchronizes its source layer so that work the units
// deferred for it has landed in the source buffer.
func (u *Unit) run(l *Layer, t *DrawTask, start time.Time) {
	if p := t.LayerParams(); p != nil && p.Source != nil {
		if err := u.rc.syncLayer(p.Source); err != nil {
			u.rc.log.Warn("drawsched: source layer sync failed",
				"unit", u.Name(), "source", p.Source.Name(), "err", err)
		}
	}

	u.execMu.Lock()
	u.executeDrawing(l, t)
	u.execMu.Unlock()

	l.complete(t)
	u.taskAct.Store(nil)

	u.rc.metrics.TaskCompleted(u.Name(), time.Since(start))
	u.rc.stats.completed.Add(1)
	u.rc.RequestDispatch()
}

// executeDrawing draws t into the layer buffer, clipped to the layer's
// current clip. On backend failure the fallback redraws the task.
func (u *Unit) executeDrawing(l *Layer, t *DrawTask) {
	clip := t.DrawArea().Intersect(l.Clip())
	if clip.Empty() {
		t.clipped.Store(true)
		return
	}
	dst := l.Buffer()

	err := u.draw(u.backend, dst, t, clip)
	if err == nil {
		return
	}

	t.failed.Store(true)
	u.rc.metrics.TaskFailed(u.Name())
	u.rc.stats.failed.Add(1)
	if u.fallback == nil || u.fallback == u.backend {
		u.rc.log.Warn("drawsched: backend failed",
			"unit", u.Name(), "kind", t.kind.String(), "err", err)
		return
	}
	u.rc.log.Warn("drawsched: backend failed, redrawing with fallback",
		"unit", u.Name(), "fallback", u.fallback.Name(), "kind", t.kind.String(), "err", err)
	if ferr := u.draw(u.fallback, dst, t, clip); ferr != nil {
		u.rc.log.Error("drawsched: fallback failed",
			"fallback", u.fallback.Name(), "kind", t.kind.String(), "err", ferr)
	}
}

// draw runs one backend operation with cache maintenance around it.
// A panicking backend is reported as an error.
func (u *Unit) draw(b Backend, dst *Buffer, t *DrawTask, clip image.Rectangle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("drawsched: %s panicked: %v", b.Name(), r)
		}
	}()

	cm, maintained := b.(CacheMaintainer)
	if maintained {
		cm.InvalidateRegion(dst, clip)
	}
	err = execute(b, dst, t, clip)
	if maintained {
		cm.CleanRegion(dst, clip)
	}
	return err
}

// syncLayer runs the backend's layer-end barrier.
func (u *Unit) syncLayer(l *Layer) error {
	ls, ok := u.backend.(LayerSyncer)
	if !ok {
		return nil
	}
	u.execMu.Lock()
	defer u.execMu.Unlock()
	if err := ls.SyncLayer(l); err != nil {
		return fmt.Errorf("drawsched: %s: sync layer %q: %w", u.Name(), l.Name(), err)
	}
	return nil
}

// setLogger passes l to the backend.
func (u *Unit) setLogger(l *slog.Logger) {
	propagateLogger(u.backend, l)
}

// Close implements DrawUnit. It waits for the task in flight, then closes
// the backend if it implements io.Closer.
func (u *Unit) Close() error {
	if u.worker != nil {
		u.worker.Close()
	}
	c, ok := u.backend.(io.Closer)
	if !ok {
		return nil
	}
	u.execMu.Lock()
	defer u.execMu.Unlock()
	if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("drawsched: close %s: %w", u.Name(), err)
	}
	return nil
}
