package drawsched

import (
	"image"
	"image/color"
	"image/draw"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// OpacityCover is full opacity.
const OpacityCover uint8 = 0xff

// Descriptor is the closed set of task parameters:
// *FillParams, *ImageParams and *LayerParams.
type Descriptor interface {
	// Kind returns the task kind the parameters belong to.
	Kind() TaskKind

	descriptor()
}

// GradientKind selects the gradient geometry.
type GradientKind uint8

const (
	// GradientLinear interpolates along Start → End.
	GradientLinear GradientKind = iota
	// GradientRadial interpolates from Center outwards to Radius.
	GradientRadial
)

// ColorStop is a color at a position in a gradient.
type ColorStop struct {
	Offset float32 // 0.0 to 1.0
	Color  color.RGBA
}

// Gradient describes a fill gradient. Stops must be sorted by offset.
type Gradient struct {
	Kind  GradientKind
	Stops []ColorStop

	// Linear geometry, absolute coordinates.
	Start, End image.Point

	// Radial geometry, absolute coordinates.
	Center image.Point
	Radius int
}

// FillParams fills the task area.
type FillParams struct {
	Color    color.RGBA
	Opacity  uint8
	Radius   int       // corner radius, 0 for square corners
	Gradient *Gradient // overrides Color when set
}

// Kind returns TaskFill.
func (*FillParams) Kind() TaskKind { return TaskFill }
func (*FillParams) descriptor()    {}

// IsOpaque reports whether the fill fully covers the pixels below.
func (p *FillParams) IsOpaque() bool {
	return p.Opacity == OpacityCover && p.Gradient == nil && p.Color.A == 0xff
}

// ImageParams blits an image source with its top-left corner at the task
// area's origin.
type ImageParams struct {
	Source *ImageSource

	Rotation float64 // degrees
	ScaleX   float64 // 0 means 1
	ScaleY   float64 // 0 means 1
	Pivot    image.Point

	Recolor        color.RGBA
	RecolorOpacity uint8

	Opacity uint8
}

// Kind returns TaskImage.
func (*ImageParams) Kind() TaskKind { return TaskImage }
func (*ImageParams) descriptor()    {}

// IsRotated reports whether the image is rotated.
func (p *ImageParams) IsRotated() bool {
	return p.Rotation != 0
}

// IsScaled reports whether the image is scaled.
func (p *ImageParams) IsScaled() bool {
	return (p.ScaleX != 0 && p.ScaleX != 1) || (p.ScaleY != 0 && p.ScaleY != 1)
}

// IsTransformed reports whether the image is rotated or scaled.
func (p *ImageParams) IsTransformed() bool {
	return p.IsRotated() || p.IsScaled()
}

// HasRecolor reports whether the image is recolored.
func (p *ImageParams) HasRecolor() bool {
	return p.RecolorOpacity > 0
}

// LayerParams composes another layer's buffer.
type LayerParams struct {
	Source  *Layer
	Opacity uint8
}

// Kind returns TaskLayer.
func (*LayerParams) Kind() TaskKind { return TaskLayer }
func (*LayerParams) descriptor()    {}

// sourceID is the last image source id handed out.
var sourceID atomic.Uint64

// ImageSource is an image that may be uploaded to device memory. Its ID
// is process-unique and serves as the identity key of device caches.
//
// An ImageSource must not be copied after first use.
type ImageSource struct {
	Image  *image.RGBA
	Format gputypes.TextureFormat

	id atomic.Uint64
}

// NewImageSource wraps img. Images whose bounds do not start at the origin
// are copied so that source coordinates start at (0, 0).
// An undefined format is treated as RGBA8.
func NewImageSource(img *image.RGBA, format gputypes.TextureFormat) *ImageSource {
	if img.Bounds().Min != (image.Point{}) {
		b := img.Bounds()
		out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		img = out
	}
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}
	s := &ImageSource{Image: img, Format: format}
	s.id.Store(sourceID.Add(1))
	return s
}

// ID returns the identity of s. Sources built without NewImageSource are
// assigned one on first use.
func (s *ImageSource) ID() uint64 {
	if id := s.id.Load(); id != 0 {
		return id
	}
	s.id.CompareAndSwap(0, sourceID.Add(1))
	return s.id.Load()
}

// Size returns the source dimensions.
func (s *ImageSource) Size() image.Point {
	return s.Image.Bounds().Size()
}
