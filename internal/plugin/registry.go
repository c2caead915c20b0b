package plugin

import (
	"slices"
	"sync"

	"github.com/dshills/stormwm/internal/core"
)

// Factory builds a fresh vtable for one activation of a builtin plugin.
type Factory func() *core.PluginVTable

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a builtin plugin available by name. It is meant to be
// called from the init function of the package implementing the plugin and
// panics if name is registered twice or factory is nil.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("plugin: Register factory is nil")
	}
	if !namePattern.MatchString(name) {
		panic("plugin: Register invalid name " + name)
	}
	if _, dup := registry[name]; dup {
		panic("plugin: Register called twice for " + name)
	}
	registry[name] = factory
}

// Builtin returns the factory registered for name.
func Builtin(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Builtins returns the registered builtin plugin names, sorted.
func Builtins() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}
