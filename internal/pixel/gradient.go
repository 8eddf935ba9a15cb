package pixel

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// RampSize is the number of entries of a rasterized gradient ramp.
const RampSize = 256

// Stop is one gradient color stop. Offset is in [0, 1].
type Stop struct {
	Offset float32
	Color  color.RGBA
}

// Ramp is a gradient rasterized into RampSize premultiplied colors.
type Ramp [RampSize]color.RGBA

// NewRamp rasterizes stops, which must be sorted by offset.
func NewRamp(stops []Stop) *Ramp {
	var r Ramp
	if len(stops) == 0 {
		return &r
	}
	for i := range r {
		t := float32(i) / float32(RampSize-1)
		r[i] = sample(stops, t)
	}
	return &r
}

func sample(stops []Stop, t float32) color.RGBA {
	if t <= stops[0].Offset {
		return stops[0].Color
	}
	last := stops[len(stops)-1]
	if t >= last.Offset {
		return last.Color
	}
	for i := 1; i < len(stops); i++ {
		a, b := stops[i-1], stops[i]
		if t > b.Offset {
			continue
		}
		span := b.Offset - a.Offset
		if span <= 0 {
			return b.Color
		}
		f := (t - a.Offset) / span
		return color.RGBA{
			R: lerp8(a.Color.R, b.Color.R, f),
			G: lerp8(a.Color.G, b.Color.G, f),
			B: lerp8(a.Color.B, b.Color.B, f),
			A: lerp8(a.Color.A, b.Color.A, f),
		}
	}
	return last.Color
}

func lerp8(a, b uint8, f float32) uint8 {
	return uint8(float32(a) + (float32(b)-float32(a))*f + 0.5)
}

// At returns the ramp color for t, clamped to [0, 1].
func (r *Ramp) At(t float64) color.RGBA {
	switch {
	case t <= 0:
		return r[0]
	case t >= 1:
		return r[RampSize-1]
	}
	return r[int(t*(RampSize-1)+0.5)]
}

// Linear returns a linear gradient from p0 to p1 covering bounds.
func Linear(bounds image.Rectangle, ramp *Ramp, p0, p1 image.Point) image.Image {
	dx, dy := float64(p1.X-p0.X), float64(p1.Y-p0.Y)
	l2 := dx*dx + dy*dy
	return &gradientImage{bounds: bounds, at: func(x, y int) color.RGBA {
		if l2 == 0 {
			return ramp.At(0)
		}
		t := ((float64(x-p0.X)+0.5)*dx + (float64(y-p0.Y)+0.5)*dy) / l2
		return ramp.At(t)
	}}
}

// Radial returns a radial gradient around center covering bounds.
func Radial(bounds image.Rectangle, ramp *Ramp, center image.Point, radius int) image.Image {
	return &gradientImage{bounds: bounds, at: func(x, y int) color.RGBA {
		if radius <= 0 {
			return ramp.At(1)
		}
		fx, fy := float64(x-center.X)+0.5, float64(y-center.Y)+0.5
		return ramp.At(math.Hypot(fx, fy) / float64(radius))
	}}
}

// FillLinear paints a linear gradient from p0 to p1 inside clip.
func FillLinear(dst *image.RGBA, clip image.Rectangle, ramp *Ramp, p0, p1 image.Point, opacity uint8) {
	FillImage(dst, clip, clip, 0, Linear(clip, ramp, p0, p1), opacity)
}

// FillRadial paints a radial gradient around center inside clip.
func FillRadial(dst *image.RGBA, clip image.Rectangle, ramp *Ramp, center image.Point, radius int, opacity uint8) {
	FillImage(dst, clip, clip, 0, Radial(clip, ramp, center, radius), opacity)
}

// FillImage paints src, which shares dst's coordinate space, into area
// with corners of the given radius, clipped to clip.
func FillImage(dst *image.RGBA, area, clip image.Rectangle, radius int, src image.Image, opacity uint8) {
	clip = clip.Intersect(area).Intersect(dst.Bounds())
	if clip.Empty() || opacity == 0 {
		return
	}
	var mask image.Image = image.NewUniform(color.Alpha{A: opacity})
	if radius > 0 {
		mask = &roundRectMask{area: area, radius: radius, opacity: opacity}
	}
	xdraw.DrawMask(dst, clip, src, clip.Min, mask, clip.Min, xdraw.Over)
}

// gradientImage evaluates a gradient lazily per pixel.
type gradientImage struct {
	bounds image.Rectangle
	at     func(x, y int) color.RGBA
}

func (g *gradientImage) ColorModel() color.Model { return color.RGBAModel }

func (g *gradientImage) Bounds() image.Rectangle { return g.bounds }

func (g *gradientImage) At(x, y int) color.Color { return g.at(x, y) }
