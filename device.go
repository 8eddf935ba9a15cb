// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package drawsched

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceProvider gives backends access to the host application's GPU
// device. It is an alias for gpucontext.DeviceProvider.
type DeviceProvider = gpucontext.DeviceProvider

// DeviceAware is implemented by backends that can share the host device.
// RenderContext calls SetDevice once during construction when a device was
// configured with WithDevice.
type DeviceAware interface {
	SetDevice(p DeviceProvider) error
}

// NullDevice is a DeviceProvider without a device. Used when drawing
// entirely to CPU memory.
type NullDevice struct{}

// Device returns nil for the null device.
func (NullDevice) Device() gpucontext.Device { return nil }

// Queue returns nil for the null device.
func (NullDevice) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null device.
func (NullDevice) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null device.
func (NullDevice) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

var _ DeviceProvider = NullDevice{}

// surfaceFormat returns the provider's surface format, or RGBA8 when the
// provider does not define one.
func surfaceFormat(p DeviceProvider) gputypes.TextureFormat {
	if p == nil {
		return gputypes.TextureFormatRGBA8Unorm
	}
	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		return f
	}
	return gputypes.TextureFormatRGBA8Unorm
}
