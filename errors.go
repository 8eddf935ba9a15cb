package drawsched

import "errors"

// Common errors.
var (
	// ErrOutOfMemory is returned when a layer buffer cannot be allocated.
	ErrOutOfMemory = errors.New("drawsched: out of memory")

	// ErrNotSupported is returned by a backend asked to run an operation
	// it did not accept in Evaluate.
	ErrNotSupported = errors.New("drawsched: operation not supported")

	// ErrNilBackend is returned when a nil backend is registered.
	ErrNilBackend = errors.New("drawsched: backend must not be nil")

	// ErrNoBackend is returned by New without backends.
	ErrNoBackend = errors.New("drawsched: no backend configured")

	// ErrClosed is returned after the RenderContext is closed.
	ErrClosed = errors.New("drawsched: render context closed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("drawsched: invalid config")

	// ErrLayerReleased is returned when submitting to a released layer.
	ErrLayerReleased = errors.New("drawsched: layer released")

	// ErrLayerBusy is returned when releasing a layer with unfinished tasks.
	ErrLayerBusy = errors.New("drawsched: layer has unfinished tasks")

	// ErrTaskSubmitted is returned when a task is submitted twice.
	ErrTaskSubmitted = errors.New("drawsched: task already submitted")

	// ErrLayerCycle is returned when a layer task would compose a layer
	// that waits on the destination layer.
	ErrLayerCycle = errors.New("drawsched: layer composes itself")
)
