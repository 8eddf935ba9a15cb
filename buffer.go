package drawsched

import (
	"image"

	"github.com/gogpu/gputypes"
)

// Buffer is a layer's draw buffer. Pixels are premultiplied RGBA laid out
// in absolute coordinates: Image.Bounds() equals the layer bounds.
type Buffer struct {
	Image  *image.RGBA
	Format gputypes.TextureFormat
}

// NewBuffer allocates a buffer covering bounds.
func NewBuffer(bounds image.Rectangle, format gputypes.TextureFormat) *Buffer {
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}
	return &Buffer{
		Image:  image.NewRGBA(bounds),
		Format: format,
	}
}

// Bounds returns the buffer rectangle.
func (b *Buffer) Bounds() image.Rectangle {
	return b.Image.Bounds()
}

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int {
	return b.Image.Stride
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int64 {
	return int64(len(b.Image.Pix))
}

// BytesFor returns the size of a buffer covering r.
func BytesFor(r image.Rectangle) int64 {
	return int64(r.Dx()) * int64(r.Dy()) * 4
}
