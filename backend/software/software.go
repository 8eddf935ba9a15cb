// Package software provides the CPU backend.
//
// The software backend accepts every task at a fixed baseline score, so a
// task no hardware backend can prove profitable always has a unit. It is
// also registered as the fallback that redraws tasks a hardware backend
// failed to execute.
//
// Register it by importing the package:
//
//	import _ "github.com/gogpu/drawsched/backend/software"
package software

import (
	"image"
	"image/color"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/backend"
	"github.com/gogpu/drawsched/backend/internal/params"
	"github.com/gogpu/drawsched/internal/cache"
	"github.com/gogpu/drawsched/internal/pixel"
)

func init() {
	backend.Register(backend.Registration{
		Name:     backend.NameSoftware,
		Priority: 0,
		Fallback: true,
		Enabled:  func(cfg drawsched.Config) bool { return cfg.Software.Enabled },
		New: func(cfg drawsched.Config) (drawsched.Backend, error) {
			return New(cfg.Software), nil
		},
	})
}

// recolorCacheSize bounds the recolored image copies kept in memory.
const recolorCacheSize = 64

// recolorKey identifies a recolored copy of an image source. Image
// sources are treated as immutable once created.
type recolorKey struct {
	source uint64
	color  color.RGBA
	mix    uint8
}

func hashRecolor(k recolorKey) uint64 {
	c := uint64(k.color.R)<<24 | uint64(k.color.G)<<16 | uint64(k.color.B)<<8 | uint64(k.color.A)
	return k.source ^ c<<8 ^ uint64(k.mix)
}

// Backend draws with the CPU. It is safe for concurrent use: as the
// fallback it may redraw for several units at once.
type Backend struct {
	score    int
	recolors *cache.Sharded[recolorKey, *image.RGBA]
}

var _ drawsched.Backend = (*Backend)(nil)

// New creates a software backend.
func New(cfg drawsched.SoftwareConfig) *Backend {
	score := cfg.Score
	if score <= 0 {
		score = drawsched.DefaultConfig().Software.Score
	}
	return &Backend{
		score:    score,
		recolors: cache.NewSharded[recolorKey, *image.RGBA](recolorCacheSize, hashRecolor),
	}
}

// Name returns "software".
func (b *Backend) Name() string { return backend.NameSoftware }

// Score returns the baseline score.
func (b *Backend) Score() int { return b.score }

// Evaluate accepts every task.
func (b *Backend) Evaluate(*drawsched.DrawTask) (int, bool) {
	return b.score, true
}

// Fill paints a solid, rounded or gradient fill.
func (b *Backend) Fill(dst *drawsched.Buffer, area, clip image.Rectangle, p *drawsched.FillParams) error {
	if g := p.Gradient; g != nil && len(g.Stops) > 0 {
		ramp := pixel.NewRamp(params.Stops(g.Stops))
		var src image.Image
		switch g.Kind {
		case drawsched.GradientRadial:
			src = pixel.Radial(clip, ramp, g.Center, g.Radius)
		default:
			src = pixel.Linear(clip, ramp, g.Start, g.End)
		}
		pixel.FillImage(dst.Image, area, clip, p.Radius, src, p.Opacity)
		return nil
	}
	pixel.FillRoundRect(dst.Image, area, clip, p.Radius, p.Color, p.Opacity)
	return nil
}

// Blit draws an image source, transformed and recolored as requested.
func (b *Backend) Blit(dst *drawsched.Buffer, area, clip image.Rectangle, p *drawsched.ImageParams) error {
	if p.Source == nil {
		return nil
	}
	src := p.Source.Image
	if p.HasRecolor() {
		key := recolorKey{source: p.Source.ID(), color: p.Recolor, mix: p.RecolorOpacity}
		src = b.recolors.GetOrCreate(key, func() *image.RGBA {
			return pixel.Recolor(p.Source.Image, p.Recolor, p.RecolorOpacity)
		})
	}
	pixel.Blit(dst.Image, clip, src, params.Transform(p).Matrix(area.Min), p.Opacity)
	return nil
}

// Compose blends the source layer's buffer. A source that never drew has
// no buffer and contributes nothing.
func (b *Backend) Compose(dst *drawsched.Buffer, _, clip image.Rectangle, p *drawsched.LayerParams) error {
	if p.Source == nil {
		return nil
	}
	src := p.Source.Buffer()
	if src == nil {
		return nil
	}
	pixel.Compose(dst.Image, clip, src.Image, p.Opacity)
	return nil
}

// CacheStats returns the recolor cache statistics.
func (b *Backend) CacheStats() cache.Stats {
	return b.recolors.Stats()
}
