package pixel

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// FillRect blends c over dst inside clip with the given opacity.
func FillRect(dst *image.RGBA, clip image.Rectangle, c color.RGBA, opacity uint8) {
	clip = clip.Intersect(dst.Bounds())
	if clip.Empty() || opacity == 0 {
		return
	}
	src := image.NewUniform(c)
	if opacity == 0xff && c.A == 0xff {
		xdraw.Draw(dst, clip, src, image.Point{}, xdraw.Src)
		return
	}
	xdraw.DrawMask(dst, clip, src, image.Point{}, image.NewUniform(color.Alpha{A: opacity}), image.Point{}, xdraw.Over)
}

// FillRoundRect fills area with corners of the given radius, clipped to clip.
func FillRoundRect(dst *image.RGBA, area, clip image.Rectangle, radius int, c color.RGBA, opacity uint8) {
	if radius <= 0 {
		FillRect(dst, area.Intersect(clip), c, opacity)
		return
	}
	clip = clip.Intersect(area).Intersect(dst.Bounds())
	if clip.Empty() || opacity == 0 {
		return
	}
	mask := &roundRectMask{area: area, radius: radius, opacity: opacity}
	xdraw.DrawMask(dst, clip, image.NewUniform(c), image.Point{}, mask, clip.Min, xdraw.Over)
}

// roundRectMask is an alpha mask that is opaque inside a rounded rectangle.
type roundRectMask struct {
	area    image.Rectangle
	radius  int
	opacity uint8
}

func (m *roundRectMask) ColorModel() color.Model { return color.AlphaModel }

func (m *roundRectMask) Bounds() image.Rectangle { return m.area }

func (m *roundRectMask) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.area) {
		return color.Alpha{}
	}
	r := min(m.radius, m.area.Dx()/2, m.area.Dy()/2)
	cx, cy := x, y
	switch {
	case x < m.area.Min.X+r:
		cx = m.area.Min.X + r
	case x >= m.area.Max.X-r:
		cx = m.area.Max.X - r - 1
	}
	switch {
	case y < m.area.Min.Y+r:
		cy = m.area.Min.Y + r
	case y >= m.area.Max.Y-r:
		cy = m.area.Max.Y - r - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > r*r {
		return color.Alpha{}
	}
	return color.Alpha{A: m.opacity}
}
