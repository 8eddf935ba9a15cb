package drawsched

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Layer accumulates draw tasks for one render target and owns their queue.
//
// A layer lives from NewLayer until ReleaseLayer. Its draw buffer is
// allocated lazily by the first dispatch that needs it.
//
// Layer is safe for concurrent use.
type Layer struct {
	id   uuid.UUID
	name string
	rc   *RenderContext

	mu       sync.Mutex
	bounds   image.Rectangle
	clip     image.Rectangle
	buf      *Buffer
	queue    Queue
	released bool

	// outstanding counts submitted tasks that are not Ready.
	outstanding atomic.Int64
}

func newLayer(rc *RenderContext, name string, bounds image.Rectangle) *Layer {
	bounds = bounds.Canon()
	return &Layer{
		id:     uuid.New(),
		name:   name,
		rc:     rc,
		bounds: bounds,
		clip:   bounds,
		queue:  Queue{preserveOrder: rc.cfg.PreserveOverlapOrder},
	}
}

// ID returns the layer identity.
func (l *Layer) ID() uuid.UUID { return l.id }

// Name returns the name given at creation.
func (l *Layer) Name() string { return l.name }

// Bounds returns the layer rectangle in absolute coordinates.
func (l *Layer) Bounds() image.Rectangle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bounds
}

// Clip returns the current clip. Tasks re-intersect with it at execution
// time, so narrowing it affects tasks already dispatched.
func (l *Layer) Clip() image.Rectangle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clip
}

// Buffer returns the draw buffer, or nil if it was not allocated yet.
func (l *Layer) Buffer() *Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf
}

// Done reports whether every submitted task is Ready.
func (l *Layer) Done() bool {
	return l.outstanding.Load() == 0
}

// Outstanding returns the number of submitted tasks that are not Ready.
func (l *Layer) Outstanding() int {
	return int(l.outstanding.Load())
}

// QueueLen returns the number of tasks held by the queue.
func (l *Layer) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// Submit enqueues t and offers it to every unit of the render context.
//
// A task whose area does not intersect its clip and the layer clip is
// marked Ready immediately without reaching any backend; this is not an
// error (see DrawTask.Clipped).
//
// A layer task whose source is l, or a layer that composes l, is rejected
// with ErrLayerCycle.
func (l *Layer) Submit(t *DrawTask) error {
	if !t.layer.CompareAndSwap(nil, l) {
		return ErrTaskSubmitted
	}
	if p := t.LayerParams(); p != nil && p.Source != nil && p.Source.dependsOn(l) {
		t.layer.Store(nil)
		return fmt.Errorf("%w: %q into %q", ErrLayerCycle, p.Source.name, l.name)
	}

	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		t.layer.Store(nil)
		return fmt.Errorf("%w: %q", ErrLayerReleased, l.name)
	}
	l.rc.stats.submitted.Add(1)

	if t.DrawArea().Intersect(l.clip).Empty() {
		l.mu.Unlock()
		t.clipped.Store(true)
		t.markReady()
		l.rc.metrics.TaskClipped()
		l.rc.stats.clipped.Add(1)
		return nil
	}

	for _, u := range l.rc.units {
		u.Evaluate(t)
	}
	l.queue.Enqueue(t)
	l.outstanding.Add(1)
	l.mu.Unlock()

	l.rc.log.Debug("drawsched: task submitted",
		"layer", l.name,
		"kind", t.kind.String(),
		"area", t.area.String(),
		"unit", t.PreferredUnit(),
		"score", t.Score())

	l.rc.RequestDispatch()
	return nil
}

// dependsOn reports whether l is target or composes it through the
// unfinished layer tasks of l and of the layers those read from.
func (l *Layer) dependsOn(target *Layer) bool {
	seen := make(map[*Layer]bool)
	stack := []*Layer{l}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, cur.sources()...)
	}
	return false
}

// sources returns the source layers of l's unfinished layer tasks.
func (l *Layer) sources() []*Layer {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Layer
	for _, t := range l.queue.tasks {
		if t.State() == StateReady {
			continue
		}
		if p := t.LayerParams(); p != nil && p.Source != nil {
			out = append(out, p.Source)
		}
	}
	return out
}

// NextAvailable returns the best task unitID may run, or nil.
func (l *Layer) NextAvailable(unitID int) *DrawTask {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.NextAvailable(unitID)
}

// NotifyBoundsChanged narrows the layer clip to bounds. Tasks that were
// dispatched but have not executed yet draw only inside the new clip.
func (l *Layer) NotifyBoundsChanged(bounds image.Rectangle) {
	l.mu.Lock()
	l.clip = bounds.Canon().Intersect(l.bounds)
	l.mu.Unlock()
	l.rc.RequestDispatch()
}

// claim picks the next task for unitID and moves it to InProgress. The
// draw buffer is materialized first if a task is available. On allocation
// failure the task stays Queued.
func (l *Layer) claim(unitID int) (*DrawTask, error) {
	l.mu.Lock()
	if l.buf == nil && l.queue.NextAvailable(unitID) != nil {
		l.mu.Unlock()
		if err := l.materialize(); err != nil {
			return nil, err
		}
		l.mu.Lock()
	}
	defer l.mu.Unlock()

	if l.buf == nil {
		return nil, nil
	}
	t := l.queue.NextAvailable(unitID)
	if t == nil {
		return nil, nil
	}
	t.state.Store(uint32(StateInProgress))
	return t, nil
}

// materialize allocates the draw buffer. The allocator runs without l.mu
// held since it may query the layer. A buffer that lost the race to
// another unit, or arrived after release, is freed again.
func (l *Layer) materialize() error {
	buf, err := l.rc.alloc.AllocateLayerBuffer(l)
	if err != nil {
		return err
	}
	if buf == nil {
		return fmt.Errorf("%w: layer %q", ErrOutOfMemory, l.name)
	}

	l.mu.Lock()
	if l.buf == nil && !l.released {
		l.buf, buf = buf, nil
	}
	l.mu.Unlock()

	if buf != nil {
		l.rc.alloc.FreeLayerBuffer(buf)
	}
	return nil
}

// complete marks t Ready.
func (l *Layer) complete(t *DrawTask) {
	if t.markReady() {
		l.outstanding.Add(-1)
	}
}

// prune drops Ready tasks from the queue.
func (l *Layer) prune() {
	l.mu.Lock()
	l.queue.Prune()
	l.mu.Unlock()
}

// release frees the buffer and refuses further submissions.
func (l *Layer) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	if l.outstanding.Load() > 0 {
		return fmt.Errorf("%w: %q has %d", ErrLayerBusy, l.name, l.outstanding.Load())
	}
	l.released = true
	if l.buf != nil {
		l.rc.alloc.FreeLayerBuffer(l.buf)
		l.buf = nil
	}
	l.queue.Prune()
	return nil
}
