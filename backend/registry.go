package backend

import (
	"cmp"
	"slices"
	"sync"

	"github.com/gogpu/drawsched"
)

// Backend names.
const (
	NameSoftware = "software"
	NameBlit2D   = "blit2d"
	NameVector   = "vector"
	NameGLPath   = "glpath"
)

// Factory creates a backend configured from cfg.
type Factory func(cfg drawsched.Config) (drawsched.Backend, error)

// Registration describes a backend package.
type Registration struct {
	Name string

	// Priority orders units: lower priorities are registered first and
	// win ties in evaluation.
	Priority int

	// Fallback marks the backend that redraws failed tasks.
	Fallback bool

	// Enabled reports whether cfg turns the backend on. Nil means always.
	Enabled func(cfg drawsched.Config) bool

	New Factory
}

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Registration)
)

// Register registers a backend. This is typically called from init()
// functions in backend packages. A registration with the same name
// replaces the previous one.
func Register(r Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[r.Name] = r
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in priority order.
func Available() []string {
	regs := registrations()
	names := make([]string, 0, len(regs))
	for _, r := range regs {
		names = append(names, r.Name)
	}
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get creates the named backend from cfg.
func Get(name string, cfg drawsched.Config) (drawsched.Backend, error) {
	registryMu.RLock()
	r, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrBackendNotAvailable
	}
	return r.New(cfg)
}

// registrations returns a snapshot sorted by priority, then name.
func registrations() []Registration {
	registryMu.RLock()
	regs := make([]Registration, 0, len(backends))
	for _, r := range backends {
		regs = append(regs, r)
	}
	registryMu.RUnlock()

	slices.SortFunc(regs, func(a, b Registration) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return regs
}
