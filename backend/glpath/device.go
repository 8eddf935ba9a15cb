// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glpath

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/internal/pixel"
	"golang.org/x/image/math/f64"
)

// TextureID names a texture object.
type TextureID uint32

// GL is the subset of an OpenGL path renderer the backend drives.
//
// Draw calls are retired by Finish. A texture sampled by a call that has
// not retired must not be deleted.
type GL interface {
	// UploadTexture copies img into a new texture.
	UploadTexture(img *image.RGBA) (TextureID, error)
	DeleteTexture(id TextureID)

	// DrawTexture draws tex through m, clipped to clip.
	DrawTexture(dst *drawsched.Buffer, clip image.Rectangle, tex TextureID, m f64.Aff3, opacity uint8) error
	// DrawLayer blends src, which shares dst's coordinate space, inside clip.
	DrawLayer(dst *drawsched.Buffer, clip image.Rectangle, src *drawsched.Buffer, opacity uint8) error

	Finish() error
}

// ErrUnknownTexture is returned for draws naming a deleted texture.
var ErrUnknownTexture = errors.New("glpath: unknown texture")

// EmulatedGL renders on the CPU. Draws render when submitted; the textures
// they sample stay in flight until Finish.
type EmulatedGL struct {
	mu       sync.Mutex
	next     TextureID
	textures map[TextureID]*image.RGBA
	inFlight map[TextureID]int

	uploads, deletes, draws, finishes int
	violations                        int
}

var _ GL = (*EmulatedGL)(nil)

// NewEmulatedGL creates an emulated renderer.
func NewEmulatedGL() *EmulatedGL {
	return &EmulatedGL{
		textures: make(map[TextureID]*image.RGBA),
		inFlight: make(map[TextureID]int),
	}
}

// UploadTexture implements GL.
func (g *EmulatedGL) UploadTexture(img *image.RGBA) (TextureID, error) {
	if img == nil {
		return 0, fmt.Errorf("glpath: upload nil image")
	}
	tex := image.NewRGBA(img.Bounds())
	copy(tex.Pix, img.Pix)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.textures[g.next] = tex
	g.uploads++
	return g.next, nil
}

// DeleteTexture implements GL. Deleting a texture still sampled by an
// unfinished draw is recorded as a violation.
func (g *EmulatedGL) DeleteTexture(id TextureID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[id] > 0 {
		g.violations++
	}
	delete(g.textures, id)
	g.deletes++
}

// DrawTexture implements GL.
func (g *EmulatedGL) DrawTexture(dst *drawsched.Buffer, clip image.Rectangle, tex TextureID, m f64.Aff3, opacity uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	img, ok := g.textures[tex]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, tex)
	}
	pixel.Blit(dst.Image, clip, img, m, opacity)
	g.draws++
	g.inFlight[tex]++
	return nil
}

// DrawLayer implements GL.
func (g *EmulatedGL) DrawLayer(dst *drawsched.Buffer, clip image.Rectangle, src *drawsched.Buffer, opacity uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	pixel.Compose(dst.Image, clip, src.Image, opacity)
	g.draws++
	return nil
}

// Finish implements GL.
func (g *EmulatedGL) Finish() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.inFlight)
	g.finishes++
	return nil
}

// GLStats counts calls seen by an EmulatedGL.
type GLStats struct {
	Uploads, Deletes, Draws, Finishes int
	// Violations counts textures deleted while still in use.
	Violations int
	// Textures is the number of live textures.
	Textures int
}

// Stats returns the call counters.
func (g *EmulatedGL) Stats() GLStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GLStats{
		Uploads:    g.uploads,
		Deletes:    g.deletes,
		Draws:      g.draws,
		Finishes:   g.finishes,
		Violations: g.violations,
		Textures:   len(g.textures),
	}
}
