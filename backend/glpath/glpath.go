// Package glpath provides the OpenGL path backend.
//
// The path renderer composes layers of any size and draws rotated or
// scaled images from textures. It does not fill. Image sources are
// uploaded once and kept in a texture cache keyed by source id; textures
// sampled while drawing a layer stay pending until the layer is
// synchronized.
package glpath

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
)

func init() {
	backend.Register(backend.Registration{
		Name:     backend.NameGLPath,
		Priority: 30,
		Enabled:  func(cfg drawsched.Config) bool { return cfg.GLPath.Enabled },
		New: func(cfg drawsched.Config) (drawsched.Backend, error) {
			return New(cfg.GLPath, NewEmulatedGL())
		},
	})
}

var formats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8Unorm,
}

// Backend drives an OpenGL path renderer.
type Backend struct {
	cfg      drawsched.GLPathConfig
	gl       GL
	textures *cache.Cache[*drawsched.ImageSource, TextureID]

	format atomic.Uint32
	log    atomic.Pointer[slog.Logger]
}

var (
	_ drawsched.Backend      = (*Backend)(nil)
	_ drawsched.LayerSyncer  = (*Backend)(nil)
	_ drawsched.DeviceAware  = (*Backend)(nil)
	_ drawsched.LoggerSetter = (*Backend)(nil)
)

// New creates a path backend on gl.
func New(cfg drawsched.GLPathConfig, gl GL) (*Backend, error) {
	if gl == nil {
		return nil, fmt.Errorf("glpath: nil renderer")
	}
	if cfg.TextureCacheSize <= 0 {
		cfg.TextureCacheSize = drawsched.DefaultConfig().GLPath.TextureCacheSize
	}
	b := &Backend{cfg: cfg, gl: gl}
	b.textures = cache.NewWithPending(cfg.TextureCacheSize, cfg.PendingCapacity, cache.Callbacks[*drawsched.ImageSource, TextureID]{
		Compare: func(x, y *drawsched.ImageSource) int { return cmp.Compare(x.ID(), y.ID()) },
		Create:  func(src *drawsched.ImageSource) (TextureID, error) { return gl.UploadTexture(src.Image) },
		Free:    func(_ *drawsched.ImageSource, id TextureID) { gl.DeleteTexture(id) },
		Barrier: gl.Finish,
	})
	b.format.Store(uint32(gputypes.TextureFormatRGBA8Unorm))
	b.log.Store(drawsched.Logger())
	return b, nil
}

// Name returns "glpath".
func (b *Backend) Name() string { return backend.NameGLPath }

// SetLogger implements drawsched.LoggerSetter.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log.Store(l)
	}
}

// SetDevice adopts the host surface format.
func (b *Backend) SetDevice(p drawsched.DeviceProvider) error {
	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		b.format.Store(uint32(f))
	}
	return nil
}

// Evaluate offers layer composition and transformed images.
func (b *Backend) Evaluate(t *drawsched.DrawTask) (int, bool) {
	if !slices.Contains(formats, gputypes.TextureFormat(b.format.Load())) {
		return 0, false
	}
	switch t.Kind() {
	case drawsched.TaskLayer:
		return b.cfg.LayerScore, true
	case drawsched.TaskImage:
		p := t.ImageParams()
		if p.Source == nil || !p.IsTransformed() || p.HasRecolor() {
			return 0, false
		}
		if !slices.Contains(formats, p.Source.Format) || params.Area(t) < b.cfg.ImageMinArea {
			return 0, false
		}
		return b.cfg.ImageScore, true
	default:
		return 0, false
	}
}

// Fill is not supported by the path renderer.
func (b *Backend) Fill(*drawsched.Buffer, image.Rectangle, image.Rectangle, *drawsched.FillParams) error {
	return drawsched.ErrNotSupported
}

// Blit draws the source texture, uploading it on first use.
func (b *Backend) Blit(dst *drawsched.Buffer, area, clip image.Rectangle, p *drawsched.ImageParams) error {
	if p.Source == nil {
		return nil
	}
	if p.HasRecolor() {
		return drawsched.ErrNotSupported
	}
	e, err := b.textures.Acquire(p.Source)
	if err != nil {
		return fmt.Errorf("glpath: texture for source %d: %w", p.Source.ID(), err)
	}
	return b.gl.DrawTexture(dst, clip, e.Value, params.Transform(p).Matrix(area.Min), p.Opacity)
}

// Compose blends the source layer buffer.
func (b *Backend) Compose(dst *drawsched.Buffer, _, clip image.Rectangle, p *drawsched.LayerParams) error {
	if p.Source == nil {
		return nil
	}
	src := p.Source.Buffer()
	if src == nil {
		return nil
	}
	return b.gl.DrawLayer(dst, clip, src, p.Opacity)
}

// SyncLayer finishes the renderer and releases the textures used since
// the previous barrier.
func (b *Backend) SyncLayer(*drawsched.Layer) error {
	return b.textures.Flush()
}

// CacheStats returns the texture cache statistics.
func (b *Backend) CacheStats() cache.Stats {
	return b.textures.Stats()
}

// Close deletes every cached texture.
func (b *Backend) Close() error {
	st := b.textures.Stats()
	if err := b.textures.Close(); err != nil {
		return err
	}
	b.log.Load().Debug("glpath: closed", "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions)
	return nil
}
