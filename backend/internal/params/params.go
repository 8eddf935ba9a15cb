// Package params converts task descriptors to pixel primitives.
package params

import (
	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/internal/pixel"
)

// Stops converts gradient stops to pixel stops.
func Stops(stops []drawsched.ColorStop) []pixel.Stop {
	out := make([]pixel.Stop, len(stops))
	for i, s := range stops {
		out[i] = pixel.Stop{Offset: s.Offset, Color: s.Color}
	}
	return out
}

// Transform returns the placement of an image blit.
func Transform(p *drawsched.ImageParams) pixel.Transform {
	return pixel.Transform{
		Rotation: p.Rotation,
		ScaleX:   p.ScaleX,
		ScaleY:   p.ScaleY,
		Pivot:    p.Pivot,
	}
}

// Area returns the number of pixels in the visible part of t.
func Area(t *drawsched.DrawTask) int {
	r := t.DrawArea()
	return r.Dx() * r.Dy()
}
