// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vector

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/backend/internal/params"
	"github.com/gogpu/drawsched/internal/pixel"
	"golang.org/x/image/math/f64"
)

// GradientID names a gradient resource on the GPU.
type GradientID uint32

// GPU is the command interface of a vector GPU.
//
// Gradients are device resources holding a color ramp. Their geometry is
// a matrix that can be rewritten between draws: for linear gradients the
// translation is the start point and the first column the direction to the
// end point; for radial gradients the translation is the center and m[0]
// the radius.
//
// Commands are retired by Finish. A gradient referenced by a command that
// has not retired must not be destroyed.
type GPU interface {
	InvalidateRegion(dst *drawsched.Buffer, r image.Rectangle)
	CleanRegion(dst *drawsched.Buffer, r image.Rectangle)

	CreateGradient(kind drawsched.GradientKind, stops []drawsched.ColorStop) (GradientID, error)
	UpdateGradient(id GradientID, m f64.Aff3) error
	DestroyGradient(id GradientID)

	// FillRect submits a solid, optionally rounded, fill of area clipped
	// to clip.
	FillRect(dst *drawsched.Buffer, area, clip image.Rectangle, radius int, c color.RGBA, opacity uint8) error
	// FillGradient submits a gradient fill of area clipped to clip.
	FillGradient(dst *drawsched.Buffer, area, clip image.Rectangle, radius int, id GradientID, opacity uint8) error
	// Blit submits a transformed copy of src, recolored towards recolor by
	// mix first.
	Blit(dst *drawsched.Buffer, clip image.Rectangle, src *image.RGBA, m f64.Aff3, opacity uint8, recolor color.RGBA, mix uint8) error

	Finish() error
}

// ErrUnknownGradient is returned for commands naming a destroyed gradient.
var ErrUnknownGradient = errors.New("vector: unknown gradient")

type gradientRes struct {
	kind drawsched.GradientKind
	ramp *pixel.Ramp
	m    f64.Aff3
}

// EmulatedGPU executes vector commands on the CPU. Commands render when
// submitted but stay in flight, together with the gradients they
// reference, until Finish retires them.
type EmulatedGPU struct {
	mu        sync.Mutex
	next      GradientID
	gradients map[GradientID]*gradientRes
	inFlight  map[GradientID]int
	queued    int

	creates, updates, destroys int
	fills, blits, finishes     int
	violations                 int
}

var _ GPU = (*EmulatedGPU)(nil)

// NewEmulatedGPU creates an idle emulated GPU.
func NewEmulatedGPU() *EmulatedGPU {
	return &EmulatedGPU{
		gradients: make(map[GradientID]*gradientRes),
		inFlight:  make(map[GradientID]int),
	}
}

// InvalidateRegion is a no-op: emulated memory is coherent.
func (g *EmulatedGPU) InvalidateRegion(*drawsched.Buffer, image.Rectangle) {}

// CleanRegion is a no-op: emulated memory is coherent.
func (g *EmulatedGPU) CleanRegion(*drawsched.Buffer, image.Rectangle) {}

// CreateGradient implements GPU.
func (g *EmulatedGPU) CreateGradient(kind drawsched.GradientKind, stops []drawsched.ColorStop) (GradientID, error) {
	if len(stops) == 0 {
		return 0, fmt.Errorf("vector: gradient without stops")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.gradients[g.next] = &gradientRes{
		kind: kind,
		ramp: pixel.NewRamp(params.Stops(stops)),
		m:    f64.Aff3{1, 0, 0, 0, 1, 0},
	}
	g.creates++
	return g.next, nil
}

// UpdateGradient implements GPU.
func (g *EmulatedGPU) UpdateGradient(id GradientID, m f64.Aff3) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.gradients[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGradient, id)
	}
	res.m = m
	g.updates++
	return nil
}

// DestroyGradient implements GPU. Destroying a gradient that unfinished
// commands reference is recorded as a violation.
func (g *EmulatedGPU) DestroyGradient(id GradientID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[id] > 0 {
		g.violations++
	}
	delete(g.gradients, id)
	g.destroys++
}

// FillRect implements GPU.
func (g *EmulatedGPU) FillRect(dst *drawsched.Buffer, area, clip image.Rectangle, radius int, c color.RGBA, opacity uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	pixel.FillRoundRect(dst.Image, area, clip, radius, c, opacity)
	g.fills++
	g.queued++
	return nil
}

// FillGradient implements GPU.
func (g *EmulatedGPU) FillGradient(dst *drawsched.Buffer, area, clip image.Rectangle, radius int, id GradientID, opacity uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.gradients[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGradient, id)
	}
	origin := image.Pt(int(res.m[2]), int(res.m[5]))
	var src image.Image
	switch res.kind {
	case drawsched.GradientRadial:
		src = pixel.Radial(area, res.ramp, origin, int(res.m[0]))
	default:
		end := origin.Add(image.Pt(int(res.m[0]), int(res.m[3])))
		src = pixel.Linear(area, res.ramp, origin, end)
	}
	pixel.FillImage(dst.Image, area, clip, radius, src, opacity)
	g.fills++
	g.queued++
	g.inFlight[id]++
	return nil
}

// Blit implements GPU.
func (g *EmulatedGPU) Blit(dst *drawsched.Buffer, clip image.Rectangle, src *image.RGBA, m f64.Aff3, opacity uint8, recolor color.RGBA, mix uint8) error {
	if src == nil {
		return fmt.Errorf("vector: blit nil source")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if mix > 0 {
		src = pixel.Recolor(src, recolor, mix)
	}
	pixel.Blit(dst.Image, clip, src, m, opacity)
	g.blits++
	g.queued++
	return nil
}

// Finish implements GPU.
func (g *EmulatedGPU) Finish() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.inFlight)
	g.queued = 0
	g.finishes++
	return nil
}

// GPUStats counts commands seen by an EmulatedGPU.
type GPUStats struct {
	Creates, Updates, Destroys int
	Fills, Blits, Finishes     int
	// Queued is the number of commands not yet retired.
	Queued int
	// Violations counts gradients destroyed while still in use.
	Violations int
	// Gradients is the number of live gradients.
	Gradients int
}

// Stats returns the command counters.
func (g *EmulatedGPU) Stats() GPUStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GPUStats{
		Creates:    g.creates,
		Updates:    g.updates,
		Destroys:   g.destroys,
		Fills:      g.fills,
		Blits:      g.blits,
		Finishes:   g.finishes,
		Queued:     g.queued,
		Violations: g.violations,
		Gradients:  len(g.gradients),
	}
}
