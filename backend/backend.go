package backend

import (
	"errors"
	"fmt"
	"io"

	"github.com/gogpu/drawsched"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoneEnabled is returned when the config enables no registered
	// backend.
	ErrNoneEnabled = errors.New("backend: no backend enabled")
)

// Build creates every registered backend cfg enables, in priority order,
// and returns them with the fallback backend (nil if none is enabled).
// On error the backends created so far are closed.
func Build(cfg drawsched.Config) ([]drawsched.Backend, drawsched.Backend, error) {
	var (
		built    []drawsched.Backend
		fallback drawsched.Backend
	)
	for _, r := range registrations() {
		if r.Enabled != nil && !r.Enabled(cfg) {
			continue
		}
		b, err := r.New(cfg)
		if err != nil {
			closeAll(built)
			return nil, nil, fmt.Errorf("backend: create %s: %w", r.Name, err)
		}
		built = append(built, b)
		if r.Fallback && fallback == nil {
			fallback = b
		}
	}
	if len(built) == 0 {
		return nil, nil, ErrNoneEnabled
	}
	return built, fallback, nil
}

// NewContext creates a render context with the backends cfg enables.
// Options are applied after the assembled backends, so WithFallback or
// WithBackends in opts extend or override them.
func NewContext(cfg drawsched.Config, opts ...drawsched.Option) (*drawsched.RenderContext, error) {
	built, fallback, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	all := []drawsched.Option{
		drawsched.WithConfig(cfg),
		drawsched.WithBackends(built...),
	}
	if fallback != nil {
		all = append(all, drawsched.WithFallback(fallback))
	}
	rc, err := drawsched.New(append(all, opts...)...)
	if err != nil {
		closeAll(built)
		return nil, err
	}
	return rc, nil
}

func closeAll(bs []drawsched.Backend) {
	for _, b := range bs {
		if c, ok := b.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
