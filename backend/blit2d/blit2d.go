// Package blit2d provides the 2D blitter backend.
//
// The blitter accelerates large solid fills, untransformed or scaled image
// blits and layer composition. It cannot draw gradients, rounded corners,
// rotated or recolored images. Small operations stay on the CPU: a fill is
// offered only when its visible area reaches the configured threshold.
//
// Image sources are mapped into the blitter once and kept in a buffer-map
// cache keyed by source id. The blitter finishes every operation before
// returning, so the cache's pending list is released after each draw.
package blit2d

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
		Name:     backend.NameBlit2D,
		Priority: 10,
		Enabled:  func(cfg drawsched.Config) bool { return cfg.Blit2D.Enabled },
		New: func(cfg drawsched.Config) (drawsched.Backend, error) {
			return New(cfg.Blit2D, NewEmulatedDevice())
		},
	})
}

// formats lists the buffer formats the blitter reads and writes.
var formats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8Unorm,
}

// Backend drives a 2D blitter.
//
// Evaluate is safe for concurrent use. The drawing methods must be called
// by one goroutine at a time, which the owning unit guarantees.
type Backend struct {
	cfg  drawsched.Blit2DConfig
	dev  Device
	maps *cache.Cache[*drawsched.ImageSource, Handle]

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

// New creates a blitter backend on dev.
func New(cfg drawsched.Blit2DConfig, dev Device) (*Backend, error) {
	if dev == nil {
		return nil, fmt.Errorf("blit2d: nil device")
	}
	size := cfg.MapCacheSize
	if size <= 0 {
		size = drawsched.DefaultConfig().Blit2D.MapCacheSize
	}
	b := &Backend{cfg: cfg, dev: dev}
	b.maps = cache.New(size, cache.Callbacks[*drawsched.ImageSource, Handle]{
		Compare: func(x, y *drawsched.ImageSource) int { return cmp.Compare(x.ID(), y.ID()) },
		Create:  func(src *drawsched.ImageSource) (Handle, error) { return dev.MapBuffer(src.Image) },
		Free:    func(_ *drawsched.ImageSource, h Handle) { dev.UnmapBuffer(h) },
		Barrier: dev.Finish,
	})
	b.format.Store(uint32(gputypes.TextureFormatRGBA8Unorm))
	b.log.Store(drawsched.Logger())
	return b, nil
}

// Name returns "blit2d".
func (b *Backend) Name() string { return backend.NameBlit2D }

// SetLogger implements drawsched.LoggerSetter.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log.Store(l)
	}
}

// SetDevice adopts the host surface format as the destination format.
// The blitter itself is not a host GPU and keeps its own device.
func (b *Backend) SetDevice(p drawsched.DeviceProvider) error {
	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		b.format.Store(uint32(f))
	}
	return nil
}

// Evaluate offers large solid fills, plain or scaled blits and layer
// composition.
func (b *Backend) Evaluate(t *drawsched.DrawTask) (int, bool) {
	if !slices.Contains(formats, gputypes.TextureFormat(b.format.Load())) {
		return 0, false
	}
	area := params.Area(t)
	switch t.Kind() {
	case drawsched.TaskFill:
		p := t.FillParams()
		if p.Gradient != nil || p.Radius > 0 {
			return 0, false
		}
		threshold := b.cfg.TranslucentFillMinArea
		if p.IsOpaque() {
			threshold = b.cfg.OpaqueFillMinArea
		}
		if area < threshold {
			return 0, false
		}
	case drawsched.TaskImage:
		p := t.ImageParams()
		if p.Source == nil || p.IsRotated() || p.HasRecolor() {
			return 0, false
		}
		if !slices.Contains(formats, p.Source.Format) || area < b.cfg.ImageMinArea {
			return 0, false
		}
	case drawsched.TaskLayer:
		if area < b.cfg.LayerMinArea {
			return 0, false
		}
	default:
		return 0, false
	}
	return b.cfg.Score, true
}

// InvalidateRegion implements drawsched.CacheMaintainer.
func (b *Backend) InvalidateRegion(dst *drawsched.Buffer, r image.Rectangle) {
	b.dev.InvalidateRegion(dst, r)
}

// CleanRegion implements drawsched.CacheMaintainer.
func (b *Backend) CleanRegion(dst *drawsched.Buffer, r image.Rectangle) {
	b.dev.CleanRegion(dst, r)
}

// Fill submits a solid fill and waits for it.
func (b *Backend) Fill(dst *drawsched.Buffer, _, clip image.Rectangle, p *drawsched.FillParams) error {
	if p.Gradient != nil || p.Radius > 0 {
		return drawsched.ErrNotSupported
	}
	if err := b.dev.Fill(dst, clip, p.Color, p.Opacity); err != nil {
		return err
	}
	return b.finish()
}

// Blit submits a blit from the mapped source and waits for it.
func (b *Backend) Blit(dst *drawsched.Buffer, area, clip image.Rectangle, p *drawsched.ImageParams) error {
	if p.Source == nil {
		return nil
	}
	if p.IsRotated() || p.HasRecolor() {
		return drawsched.ErrNotSupported
	}
	e, err := b.maps.Acquire(p.Source)
	if err != nil {
		return fmt.Errorf("blit2d: map source %d: %w", p.Source.ID(), err)
	}
	m := params.Transform(p).Matrix(area.Min)
	if err := b.dev.Blit(dst, clip, e.Value, m, p.Opacity); err != nil {
		return err
	}
	return b.finish()
}

// Compose blits the source layer buffer. Layer buffers are mapped per
// operation since they may be freed once the layer is released.
func (b *Backend) Compose(dst *drawsched.Buffer, _, clip image.Rectangle, p *drawsched.LayerParams) error {
	if p.Source == nil {
		return nil
	}
	src := p.Source.Buffer()
	if src == nil {
		return nil
	}
	h, err := b.dev.MapBuffer(src.Image)
	if err != nil {
		return fmt.Errorf("blit2d: map layer %q: %w", p.Source.Name(), err)
	}
	identity := f64.Aff3{1, 0, 0, 0, 1, 0}
	err = b.dev.Blit(dst, clip, h, identity, p.Opacity)
	if err == nil {
		err = b.dev.Finish()
	}
	b.dev.UnmapBuffer(h)
	return err
}

// finish waits for the blitter and releases the mappings used.
func (b *Backend) finish() error {
	if err := b.dev.Finish(); err != nil {
		return err
	}
	b.maps.ReleasePending()
	return nil
}

// SyncLayer implements drawsched.LayerSyncer.
func (b *Backend) SyncLayer(*drawsched.Layer) error {
	return b.finish()
}

// CacheStats returns the buffer-map cache statistics.
func (b *Backend) CacheStats() cache.Stats {
	return b.maps.Stats()
}

// Close unmaps every cached source.
func (b *Backend) Close() error {
	st := b.maps.Stats()
	if err := b.maps.Close(); err != nil {
		return err
	}
	b.log.Load().Debug("blit2d: closed", "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions)
	return nil
}
