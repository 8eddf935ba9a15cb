package drawsched

import (
	"context"
	"image"
	"math"
	"sync/atomic"
)

// TaskKind identifies the operation a DrawTask performs.
type TaskKind uint8

const (
	// TaskFill fills a rectangle with a color or gradient.
	TaskFill TaskKind = iota
	// TaskImage blits an image source, optionally transformed or recolored.
	TaskImage
	// TaskLayer composes another layer's buffer.
	TaskLayer
)

// String returns the kind name.
func (k TaskKind) String() string {
	switch k {
	case TaskFill:
		return "fill"
	case TaskImage:
		return "image"
	case TaskLayer:
		return "layer"
	default:
		return "unknown"
	}
}

// TaskState is the dispatch state of a DrawTask.
type TaskState uint32

const (
	// StateQueued is the initial state: waiting for a unit.
	StateQueued TaskState = iota
	// StateInProgress means a unit claimed the task.
	StateInProgress
	// StateReady is terminal: the task executed or was clipped away.
	StateReady
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInProgress:
		return "in-progress"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

const (
	// ScoreUnclaimed is the preference score of a task no unit offered for.
	ScoreUnclaimed = math.MaxInt32

	// NoUnit is the unit id of an unclaimed task. Unit ids start at 1.
	NoUnit = 0
)

// DrawTask is one atomic drawing operation.
//
// Geometry and descriptor are immutable after construction. The score,
// preferred unit and state are written by the owning layer under its lock
// and may be read from any goroutine.
type DrawTask struct {
	kind TaskKind
	area image.Rectangle
	clip image.Rectangle
	desc Descriptor

	score atomic.Int64
	unit  atomic.Int32
	state atomic.Uint32

	clipped atomic.Bool
	failed  atomic.Bool

	layer atomic.Pointer[Layer]
	done  chan struct{}
}

func newTask(area, clip image.Rectangle, desc Descriptor) *DrawTask {
	t := &DrawTask{
		kind: desc.Kind(),
		area: area.Canon(),
		clip: clip.Canon(),
		desc: desc,
		done: make(chan struct{}),
	}
	t.score.Store(ScoreUnclaimed)
	return t
}

// NewFillTask creates a fill task covering area, drawn only inside clip.
func NewFillTask(area, clip image.Rectangle, p FillParams) *DrawTask {
	return newTask(area, clip, &p)
}

// NewImageTask creates an image blit placing the source at area.Min.
func NewImageTask(area, clip image.Rectangle, p ImageParams) *DrawTask {
	return newTask(area, clip, &p)
}

// NewLayerTask creates a task composing p.Source into area.
func NewLayerTask(area, clip image.Rectangle, p LayerParams) *DrawTask {
	return newTask(area, clip, &p)
}

// Kind returns the operation kind.
func (t *DrawTask) Kind() TaskKind { return t.kind }

// Area returns the rectangle the operation covers.
func (t *DrawTask) Area() image.Rectangle { return t.area }

// Clip returns the clip rectangle given at construction.
func (t *DrawTask) Clip() image.Rectangle { return t.clip }

// DrawArea returns Area intersected with Clip.
func (t *DrawTask) DrawArea() image.Rectangle { return t.area.Intersect(t.clip) }

// Descriptor returns the variant-specific parameters.
func (t *DrawTask) Descriptor() Descriptor { return t.desc }

// FillParams returns the fill parameters, or nil for other kinds.
func (t *DrawTask) FillParams() *FillParams {
	p, _ := t.desc.(*FillParams)
	return p
}

// ImageParams returns the image parameters, or nil for other kinds.
func (t *DrawTask) ImageParams() *ImageParams {
	p, _ := t.desc.(*ImageParams)
	return p
}

// LayerParams returns the layer parameters, or nil for other kinds.
func (t *DrawTask) LayerParams() *LayerParams {
	p, _ := t.desc.(*LayerParams)
	return p
}

// Score returns the current preference score. Lower is better.
func (t *DrawTask) Score() int { return int(t.score.Load()) }

// PreferredUnit returns the id of the unit that last lowered the score,
// or NoUnit.
func (t *DrawTask) PreferredUnit() int { return int(t.unit.Load()) }

// State returns the dispatch state.
func (t *DrawTask) State() TaskState { return TaskState(t.state.Load()) }

// Clipped reports whether the task was dropped because nothing of it was
// visible.
func (t *DrawTask) Clipped() bool { return t.clipped.Load() }

// Failed reports whether the preferred backend rejected the task at
// execution time (the fallback refilled the pixels).
func (t *DrawTask) Failed() bool { return t.failed.Load() }

// Layer returns the layer the task was submitted to, or nil.
func (t *DrawTask) Layer() *Layer { return t.layer.Load() }

// Done returns a channel closed when the task reaches StateReady.
func (t *DrawTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is Ready or ctx is done.
func (t *DrawTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer records score for unitID if it is strictly lower than the current
// score. It reports whether the offer won. The score never increases.
//
// Offer is called by DrawUnit.Evaluate while the owning layer evaluates a
// newly submitted task.
func (t *DrawTask) Offer(unitID, score int) bool {
	if int64(score) >= t.score.Load() {
		return false
	}
	t.score.Store(int64(score))
	t.unit.Store(int32(unitID))
	return true
}

// markReady moves the task to its terminal state exactly once.
func (t *DrawTask) markReady() bool {
	for {
		s := t.state.Load()
		if TaskState(s) == StateReady {
			return false
		}
		if t.state.CompareAndSwap(s, uint32(StateReady)) {
			close(t.done)
			return true
		}
	}
}
