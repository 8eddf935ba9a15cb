package pixel

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Transform describes how a source image is placed into a destination
// area: scaled and rotated around Pivot (in source coordinates).
type Transform struct {
	Rotation float64 // degrees, clockwise in screen space
	ScaleX   float64
	ScaleY   float64
	Pivot    image.Point
}

// IsIdentity reports whether t neither scales nor rotates.
func (t Transform) IsIdentity() bool {
	return t.Rotation == 0 && (t.ScaleX == 0 || t.ScaleX == 1) && (t.ScaleY == 0 || t.ScaleY == 1)
}

// Matrix returns the source-to-destination affine matrix for an image
// whose top-left corner lands at origin.
func (t Transform) Matrix(origin image.Point) f64.Aff3 {
	sx, sy := t.ScaleX, t.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	rad := t.Rotation * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	a, b := sx*cos, -sy*sin
	d, e := sx*sin, sy*cos
	px, py := float64(t.Pivot.X), float64(t.Pivot.Y)
	return f64.Aff3{
		a, b, float64(origin.X) + px - (a*px + b*py),
		d, e, float64(origin.Y) + py - (d*px + e*py),
	}
}

// Blit draws src into dst with matrix m (source to destination), clipped
// to clip, blended with the given opacity.
func Blit(dst *image.RGBA, clip image.Rectangle, src *image.RGBA, m f64.Aff3, opacity uint8) {
	clip = clip.Intersect(dst.Bounds())
	if clip.Empty() || opacity == 0 {
		return
	}
	target := dst.SubImage(clip).(*image.RGBA)

	// Pure translation takes the direct path.
	if m[0] == 1 && m[1] == 0 && m[3] == 0 && m[4] == 1 && m[2] == math.Trunc(m[2]) && m[5] == math.Trunc(m[5]) {
		off := image.Pt(int(m[2]), int(m[5]))
		sp := clip.Min.Sub(off)
		if opacity == 0xff {
			xdraw.Draw(target, clip, src, sp, xdraw.Over)
			return
		}
		xdraw.DrawMask(target, clip, src, sp, image.NewUniform(color.Alpha{A: opacity}), image.Point{}, xdraw.Over)
		return
	}

	var opts *xdraw.Options
	if opacity != 0xff {
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: opacity})}
	}
	xdraw.ApproxBiLinear.Transform(target, m, src, src.Bounds(), xdraw.Over, opts)
}

// Recolor returns a copy of src mixed towards c by mix/255, keeping alpha.
func Recolor(src *image.RGBA, c color.RGBA, mix uint8) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	if mix == 0 {
		return out
	}
	m := uint32(mix)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		a := uint32(out.Pix[i+3])
		// Target channels are premultiplied by the pixel's own alpha.
		tr := uint32(c.R) * a / 0xff
		tg := uint32(c.G) * a / 0xff
		tb := uint32(c.B) * a / 0xff
		out.Pix[i] = uint8((uint32(out.Pix[i])*(0xff-m) + tr*m) / 0xff)
		out.Pix[i+1] = uint8((uint32(out.Pix[i+1])*(0xff-m) + tg*m) / 0xff)
		out.Pix[i+2] = uint8((uint32(out.Pix[i+2])*(0xff-m) + tb*m) / 0xff)
	}
	return out
}

// Compose blends a source layer onto dst inside clip. Both images share
// the same absolute coordinate space.
func Compose(dst *image.RGBA, clip image.Rectangle, src *image.RGBA, opacity uint8) {
	clip = clip.Intersect(dst.Bounds()).Intersect(src.Bounds())
	if clip.Empty() || opacity == 0 {
		return
	}
	if opacity == 0xff {
		xdraw.Draw(dst, clip, src, clip.Min, xdraw.Over)
		return
	}
	xdraw.DrawMask(dst, clip, src, clip.Min, image.NewUniform(color.Alpha{A: opacity}), image.Point{}, xdraw.Over)
}
