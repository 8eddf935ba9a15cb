// Package vector provides the vector GPU backend.
//
// The vector GPU draws rounded and gradient fills and rotated, scaled or
// recolored images. It cannot compose layers. Gradients are compiled into
// GPU resources that are cached by their color stops and geometry, so
// structurally identical gradients share one upload.
//
// Commands are not waited for after each draw. Every gradient a draw used
// stays on the cache's pending list until the next barrier, which runs when
// a layer is synchronized or when the cache needs room.
package vector

import (
	"cmp"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/backend"
	"github.com/gogpu/drawsched/backend/internal/params"
	"github.com/gogpu/drawsched/internal/cache"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f64"
)

func init() {
	backend.Register(backend.Registration{
		Name:     backend.NameVector,
		Priority: 20,
		Enabled:  func(cfg drawsched.Config) bool { return cfg.Vector.Enabled },
		New: func(cfg drawsched.Config) (drawsched.Backend, error) {
			return New(cfg.Vector, NewEmulatedGPU())
		},
	})
}

var formats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8Unorm,
}

// gradientKey identifies a gradient resource. Linear gradients with the
// same stops share a resource; their endpoints live in the matrix.
type gradientKey struct {
	kind   drawsched.GradientKind
	stops  []drawsched.ColorStop
	center image.Point
	radius int
}

func newGradientKey(g *drawsched.Gradient) gradientKey {
	k := gradientKey{kind: g.Kind, stops: slices.Clone(g.Stops)}
	if g.Kind == drawsched.GradientRadial {
		k.center = g.Center
		k.radius = g.Radius
	}
	return k
}

func compareKeys(a, b gradientKey) int {
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	if c := cmp.Compare(len(a.stops), len(b.stops)); c != 0 {
		return c
	}
	for i := range a.stops {
		if c := compareStops(a.stops[i], b.stops[i]); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.center.X, b.center.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.center.Y, b.center.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.radius, b.radius)
}

func compareStops(a, b drawsched.ColorStop) int {
	if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
		return c
	}
	pa := uint32(a.Color.R)<<24 | uint32(a.Color.G)<<16 | uint32(a.Color.B)<<8 | uint32(a.Color.A)
	pb := uint32(b.Color.R)<<24 | uint32(b.Color.G)<<16 | uint32(b.Color.B)<<8 | uint32(b.Color.A)
	return cmp.Compare(pa, pb)
}

// gradient is a cached GPU gradient and the matrix last uploaded for it.
type gradient struct {
	id     GradientID
	matrix f64.Aff3
}

// matrix returns the gradient geometry in the form GPU expects.
func matrix(g *drawsched.Gradient) f64.Aff3 {
	if g.Kind == drawsched.GradientRadial {
		r := float64(g.Radius)
		return f64.Aff3{r, 0, float64(g.Center.X), 0, r, float64(g.Center.Y)}
	}
	d := g.End.Sub(g.Start)
	return f64.Aff3{float64(d.X), 0, float64(g.Start.X), float64(d.Y), 0, float64(g.Start.Y)}
}

// poller is the part of a host GPU device the barrier waits on.
type poller interface {
	Poll(wait bool)
}

// Backend drives a vector GPU.
//
// Evaluate is safe for concurrent use. The drawing methods must be called
// by one goroutine at a time, which the owning unit guarantees.
type Backend struct {
	cfg       drawsched.VectorConfig
	gpu       GPU
	gradients *cache.Cache[gradientKey, gradient]

	// host is set by SetDevice before the backend draws.
	host poller

	format atomic.Uint32
	log    atomic.Pointer[slog.Logger]
}

var (
	_ drawsched.Backend         = (*Backend)(nil)
	_ drawsched.CacheMaintainer = (*Backend)(nil)
	_ drawsched.LayerSyncer     = (*Backend)(nil)
	_ drawsched.DeviceAware     = (*Backend)(nil)
	_ drawsched.LoggerSetter    = (*Backend)(nil)
)

// New creates a vector backend on gpu.
func New(cfg drawsched.VectorConfig, gpu GPU) (*Backend, error) {
	if gpu == nil {
		return nil, fmt.Errorf("vector: nil gpu")
	}
	def := drawsched.DefaultConfig().Vector
	if cfg.GradientCacheSize <= 0 {
		cfg.GradientCacheSize = def.GradientCacheSize
	}
	if cfg.MaxGradientStops <= 0 {
		cfg.MaxGradientStops = def.MaxGradientStops
	}
	b := &Backend{cfg: cfg, gpu: gpu}
	b.gradients = cache.NewWithPending(cfg.GradientCacheSize, cfg.PendingCapacity, cache.Callbacks[gradientKey, gradient]{
		Compare: compareKeys,
		Create: func(k gradientKey) (gradient, error) {
			id, err := gpu.CreateGradient(k.kind, k.stops)
			if err != nil {
				return gradient{}, err
			}
			return gradient{id: id, matrix: f64.Aff3{1, 0, 0, 0, 1, 0}}, nil
		},
		Free:    func(_ gradientKey, g gradient) { gpu.DestroyGradient(g.id) },
		Barrier: b.barrier,
	})
	b.format.Store(uint32(gputypes.TextureFormatRGBA8Unorm))
	b.log.Store(drawsched.Logger())
	return b, nil
}

// Name returns "vector".
func (b *Backend) Name() string { return backend.NameVector }

// SetLogger implements drawsched.LoggerSetter.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log.Store(l)
	}
}

// SetDevice adopts the host surface format. When the host device can be
// polled, barriers also wait for the host queue.
func (b *Backend) SetDevice(p drawsched.DeviceProvider) error {
	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		b.format.Store(uint32(f))
	}
	if pl, ok := p.Device().(poller); ok {
		b.host = pl
	}
	return nil
}

// barrier waits until every submitted command has retired.
func (b *Backend) barrier() error {
	if err := b.gpu.Finish(); err != nil {
		return fmt.Errorf("vector: finish: %w", err)
	}
	if b.host != nil {
		b.host.Poll(true)
	}
	return nil
}

// Evaluate offers large fills, including rounded and gradient fills, and
// images that are either transformed or recolored.
func (b *Backend) Evaluate(t *drawsched.DrawTask) (int, bool) {
	if !slices.Contains(formats, gputypes.TextureFormat(b.format.Load())) {
		return 0, false
	}
	area := params.Area(t)
	switch t.Kind() {
	case drawsched.TaskFill:
		p := t.FillParams()
		if area < b.cfg.FillMinArea {
			return 0, false
		}
		if g := p.Gradient; g != nil && (len(g.Stops) == 0 || len(g.Stops) > b.cfg.MaxGradientStops) {
			return 0, false
		}
	case drawsched.TaskImage:
		p := t.ImageParams()
		if p.Source == nil || !slices.Contains(formats, p.Source.Format) {
			return 0, false
		}
		if p.IsTransformed() == p.HasRecolor() {
			return 0, false
		}
		if area < b.cfg.ImageMinArea {
			return 0, false
		}
	default:
		return 0, false
	}
	return b.cfg.Score, true
}

// InvalidateRegion implements drawsched.CacheMaintainer.
func (b *Backend) InvalidateRegion(dst *drawsched.Buffer, r image.Rectangle) {
	b.gpu.InvalidateRegion(dst, r)
}

// CleanRegion implements drawsched.CacheMaintainer.
func (b *Backend) CleanRegion(dst *drawsched.Buffer, r image.Rectangle) {
	b.gpu.CleanRegion(dst, r)
}

// Fill submits a solid or gradient fill.
func (b *Backend) Fill(dst *drawsched.Buffer, area, clip image.Rectangle, p *drawsched.FillParams) error {
	if p.Gradient == nil {
		return b.gpu.FillRect(dst, area, clip, p.Radius, p.Color, p.Opacity)
	}
	if len(p.Gradient.Stops) > b.cfg.MaxGradientStops {
		return fmt.Errorf("vector: %d gradient stops: %w", len(p.Gradient.Stops), drawsched.ErrNotSupported)
	}
	e, err := b.gradients.Acquire(newGradientKey(p.Gradient))
	if err != nil {
		return fmt.Errorf("vector: acquire gradient: %w", err)
	}
	if m := matrix(p.Gradient); e.Value.matrix != m {
		if err := b.gpu.UpdateGradient(e.Value.id, m); err != nil {
			return err
		}
		e.Value.matrix = m
	}
	return b.gpu.FillGradient(dst, area, clip, p.Radius, e.Value.id, p.Opacity)
}

// Blit submits a transformed or recolored image.
func (b *Backend) Blit(dst *drawsched.Buffer, area, clip image.Rectangle, p *drawsched.ImageParams) error {
	if p.Source == nil {
		return nil
	}
	m := params.Transform(p).Matrix(area.Min)
	return b.gpu.Blit(dst, clip, p.Source.Image, m, p.Opacity, p.Recolor, p.RecolorOpacity)
}

// Compose is not supported by the vector GPU.
func (b *Backend) Compose(*drawsched.Buffer, image.Rectangle, image.Rectangle, *drawsched.LayerParams) error {
	return drawsched.ErrNotSupported
}

// SyncLayer runs the barrier and releases the gradients used since the
// previous one.
func (b *Backend) SyncLayer(*drawsched.Layer) error {
	return b.gradients.Flush()
}

// CacheStats returns the gradient cache statistics.
func (b *Backend) CacheStats() cache.Stats {
	return b.gradients.Stats()
}

// Close waits for the GPU and destroys every cached gradient.
func (b *Backend) Close() error {
	st := b.gradients.Stats()
	if err := b.gradients.Close(); err != nil {
		return err
	}
	b.log.Load().Debug("vector: closed",
		"hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions, "barriers", st.Barriers)
	return nil
}
