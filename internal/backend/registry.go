package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/stormwm/internal/core"
)

// Factory opens a backend for the named display.
type Factory func(display string, opts Options) (core.Backend, error)

// Options are the settings every backend understands.
type Options struct {
	// RefreshRate is reported for every screen when the backend cannot
	// detect one. Zero leaves detection to the backend.
	RefreshRate int
	Logger      core.Logger
	// Quit is called from a backend goroutine when the user asks the
	// nested display to close.
	Quit func()
}

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend available by name. It panics on duplicates.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	factories[name] = f
}

// Open creates the backend registered as name.
func Open(name, display string, opts Options) (core.Backend, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown backend %q (have %v)", name, Names())
	}
	return f(display, opts)
}

// Names returns the registered backend names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
