package layer

import (
	"slices"
	"sync"
)

// Manager holds the layers of one configuration and merges them.
type Manager struct {
	mu     sync.RWMutex
	layers []*Layer // ascending priority
	merged map[string]any
	dirty  bool
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{dirty: true}
}

// Set adds l, replacing any layer with the same name.
func (m *Manager) Set(l *Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers = slices.DeleteFunc(m.layers, func(x *Layer) bool { return x.Name == l.Name })
	m.layers = append(m.layers, l)
	// Stable, so layers of one source keep the order they were set in.
	slices.SortStableFunc(m.layers, func(a, b *Layer) int {
		return a.Source.Priority() - b.Source.Priority()
	})
	m.dirty = true
}

// Remove drops the layer called name and reports whether it existed.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.layers)
	m.layers = slices.DeleteFunc(m.layers, func(x *Layer) bool { return x.Name == name })
	if len(m.layers) == n {
		return false
	}
	m.dirty = true
	return true
}

// Layer returns the layer called name, or nil.
func (m *Manager) Layer(name string) *Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Layers returns the layers lowest priority first.
func (m *Manager) Layers() []*Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.layers)
}

// Merge returns a copy of all layers merged in priority order. The result
// is cached until the layers change.
func (m *Manager) Merge() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirty || m.merged == nil {
		merged := make(map[string]any)
		for _, l := range m.layers {
			merged = DeepMerge(merged, l.Data)
		}
		m.merged = merged
		m.dirty = false
	}
	return cloneMap(m.merged)
}

// Get returns the effective value at path and the layer that set it.
func (m *Manager) Get(path string) (any, *Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range slices.Backward(m.layers) {
		if v, ok := GetByPath(l.Data, path); ok {
			return v, l, true
		}
	}
	return nil, nil, false
}

// WhichLayer returns the name of the layer that sets path, or "".
func (m *Manager) WhichLayer(path string) string {
	if _, l, ok := m.Get(path); ok {
		return l.Name
	}
	return ""
}
