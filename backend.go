package drawsched

import "image"

// Backend is a drawing engine plugged into a Unit.
//
// Evaluate is pure: it inspects the task's kind, geometry and descriptor
// and reports whether the engine can draw it and at which preference
// score (lower is better). The Unit applies the score to the task.
//
// The drawing methods are called from the unit's worker goroutine, one at
// a time. dst is the layer buffer, area the task area and clip the visible
// part of it in absolute coordinates; clip is never empty.
type Backend interface {
	Name() string

	Evaluate(t *DrawTask) (score int, ok bool)

	Fill(dst *Buffer, area, clip image.Rectangle, p *FillParams) error
	Blit(dst *Buffer, area, clip image.Rectangle, p *ImageParams) error
	Compose(dst *Buffer, area, clip image.Rectangle, p *LayerParams) error
}

// CacheMaintainer is implemented by backends whose hardware reads and
// writes the buffer behind the CPU cache. InvalidateRegion runs before the
// hardware accesses r and CleanRegion after it.
type CacheMaintainer interface {
	InvalidateRegion(dst *Buffer, r image.Rectangle)
	CleanRegion(dst *Buffer, r image.Rectangle)
}

// LayerSyncer is implemented by backends that defer work or resource
// reclamation until a layer is complete. SyncLayer is a synchronization
// barrier: after it returns every operation on l has retired and pending
// resources may be freed.
type LayerSyncer interface {
	SyncLayer(l *Layer) error
}

// execute dispatches to the backend method matching the task kind.
func execute(b Backend, dst *Buffer, t *DrawTask, clip image.Rectangle) error {
	switch p := t.desc.(type) {
	case *FillParams:
		return b.Fill(dst, t.area, clip, p)
	case *ImageParams:
		return b.Blit(dst, t.area, clip, p)
	case *LayerParams:
		return b.Compose(dst, t.area, clip, p)
	default:
		return ErrNotSupported
	}
}
