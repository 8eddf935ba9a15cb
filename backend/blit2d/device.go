// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package blit2d

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/gogpu/drawsched"
	"github.com/gogpu/drawsched/internal/pixel"
	"golang.org/x/image/math/f64"
)

// Handle names a buffer mapped into the blitter's address space.
type Handle uint32

// Device is the command interface of a 2D blitter.
//
// The blitter reads and writes memory behind the CPU cache: callers
// invalidate a destination region before submitting commands touching it
// and clean it afterwards. Commands run asynchronously until Finish.
type Device interface {
	InvalidateRegion(dst *drawsched.Buffer, r image.Rectangle)
	CleanRegion(dst *drawsched.Buffer, r image.Rectangle)

	// MapBuffer makes img addressable by the blitter.
	MapBuffer(img *image.RGBA) (Handle, error)
	// UnmapBuffer releases a mapping. The handle must not be referenced by
	// an unfinished command.
	UnmapBuffer(h Handle)

	// Fill submits a solid fill of r.
	Fill(dst *drawsched.Buffer, r image.Rectangle, c color.RGBA, opacity uint8) error
	// Blit submits a copy of src through m (translation and scale only),
	// clipped to clip.
	Blit(dst *drawsched.Buffer, clip image.Rectangle, src Handle, m f64.Aff3, opacity uint8) error

	// Finish blocks until every submitted command has retired.
	Finish() error
}

// ErrBadHandle is returned for commands naming an unknown mapping.
var ErrBadHandle = errors.New("blit2d: unknown buffer handle")

// EmulatedDevice executes blitter commands on the CPU. Commands are queued
// and run by Finish, which lets tests observe the asynchronous contract.
type EmulatedDevice struct {
	mu       sync.Mutex
	next     Handle
	mapped   map[Handle]*image.RGBA
	queue    []func()
	inFlight map[Handle]int

	maps, unmaps, fills, blits, finishes int
	violations                           int
}

var _ Device = (*EmulatedDevice)(nil)

// NewEmulatedDevice creates an idle emulated blitter.
func NewEmulatedDevice() *EmulatedDevice {
	return &EmulatedDevice{
		mapped:   make(map[Handle]*image.RGBA),
		inFlight: make(map[Handle]int),
	}
}

// InvalidateRegion is a no-op: emulated memory is coherent.
func (d *EmulatedDevice) InvalidateRegion(*drawsched.Buffer, image.Rectangle) {}

// CleanRegion is a no-op: emulated memory is coherent.
func (d *EmulatedDevice) CleanRegion(*drawsched.Buffer, image.Rectangle) {}

// MapBuffer implements Device.
func (d *EmulatedDevice) MapBuffer(img *image.RGBA) (Handle, error) {
	if img == nil {
		return 0, fmt.Errorf("blit2d: map nil buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.mapped[d.next] = img
	d.maps++
	return d.next, nil
}

// UnmapBuffer implements Device. Unmapping a handle with unfinished
// commands is recorded as a violation.
func (d *EmulatedDevice) UnmapBuffer(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight[h] > 0 {
		d.violations++
	}
	delete(d.mapped, h)
	d.unmaps++
}

// Fill implements Device.
func (d *EmulatedDevice) Fill(dst *drawsched.Buffer, r image.Rectangle, c color.RGBA, opacity uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fills++
	d.queue = append(d.queue, func() {
		pixel.FillRect(dst.Image, r, c, opacity)
	})
	return nil
}

// Blit implements Device.
func (d *EmulatedDevice) Blit(dst *drawsched.Buffer, clip image.Rectangle, src Handle, m f64.Aff3, opacity uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.mapped[src]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadHandle, src)
	}
	if m[1] != 0 || m[3] != 0 {
		return fmt.Errorf("blit2d: rotation: %w", drawsched.ErrNotSupported)
	}
	d.blits++
	d.inFlight[src]++
	d.queue = append(d.queue, func() {
		pixel.Blit(dst.Image, clip, img, m, opacity)
	})
	return nil
}

// Finish implements Device.
func (d *EmulatedDevice) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cmd := range d.queue {
		cmd()
	}
	clear(d.queue)
	d.queue = d.queue[:0]
	clear(d.inFlight)
	d.finishes++
	return nil
}

// DeviceStats counts commands seen by an EmulatedDevice.
type DeviceStats struct {
	Maps, Unmaps, Fills, Blits, Finishes int
	// Violations counts mappings released while still in use.
	Violations int
	// Mapped is the number of live mappings.
	Mapped int
}

// Stats returns the command counters.
func (d *EmulatedDevice) Stats() DeviceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeviceStats{
		Maps:       d.maps,
		Unmaps:     d.unmaps,
		Fills:      d.fills,
		Blits:      d.blits,
		Finishes:   d.finishes,
		Violations: d.violations,
		Mapped:     len(d.mapped),
	}
}
