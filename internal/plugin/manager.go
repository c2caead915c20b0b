package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/stormwm/internal/core"
)

// Manager loads plugins, activates them on the core in dependency order and
// tears them down again.
//
// Activation runs plugin code against the core, so every method except
// Subscribe, List and Get must be called from the event loop goroutine.
type Manager struct {
	mu sync.RWMutex

	core   *core.Core
	loader *Loader
	logger core.Logger
	config ManagerConfig

	hosts map[string]*Host

	// active lists active plugins in activation order.
	active []string

	handlers []EventHandler
}

// ManagerConfig configures the plugin manager.
type ManagerConfig struct {
	// PluginPaths are the directories searched for script plugins.
	PluginPaths []string

	// ExecutionTimeout bounds each call into a script plugin. Zero keeps
	// the Lua package default.
	ExecutionTimeout time.Duration

	// Settings holds per-plugin overrides of the manifest config, keyed
	// by plugin name.
	Settings map[string]map[string]any

	Logger core.Logger
}

// DefaultManagerConfig returns the default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PluginPaths: DefaultPluginPaths(),
	}
}

// EventHandler receives manager events. Handlers run synchronously on the
// goroutine that caused the event and must not call back into the manager.
// Panics are recovered.
type EventHandler func(event ManagerEvent)

// ManagerEvent reports a lifecycle change of one plugin.
type ManagerEvent struct {
	Type   ManagerEventType
	Plugin string
	// ID is the host's load id; it is uuid.Nil for events about a plugin
	// that is not loaded.
	ID    uuid.UUID
	Error error
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted when a plugin is loaded.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginUnloaded is emitted when a plugin is unloaded.
	EventPluginUnloaded
	// EventPluginActivated is emitted when a plugin is activated.
	EventPluginActivated
	// EventPluginDeactivated is emitted when a plugin is deactivated.
	EventPluginDeactivated
	// EventPluginReloaded is emitted when a plugin is reloaded.
	EventPluginReloaded
	// EventPluginError is emitted when loading or activation fails.
	EventPluginError
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginActivated:
		return "activated"
	case EventPluginDeactivated:
		return "deactivated"
	case EventPluginReloaded:
		return "reloaded"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// NewManager creates a manager for c.
func NewManager(c *core.Core, config ManagerConfig) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Manager{
		core:   c,
		loader: NewLoader(WithPaths(config.PluginPaths...)),
		logger: logger,
		config: config,
		hosts:  make(map[string]*Host),
	}
}

// Loader returns the filesystem loader.
func (m *Manager) Loader() *Loader {
	return m.loader
}

// SetSettings replaces the per-plugin config overrides. Plugins pick them
// up the next time they are loaded.
func (m *Manager) SetSettings(settings map[string]map[string]any) {
	m.mu.Lock()
	m.config.Settings = settings
	m.mu.Unlock()
}

// Available returns every plugin that can be activated: the builtins and
// the script plugins on the search paths, sorted by name.
func (m *Manager) Available() ([]string, error) {
	infos, err := m.loader.Discover()
	if err != nil {
		return nil, err
	}
	names := Builtins()
	for _, info := range infos {
		if info.Error == nil && !slices.Contains(names, info.Name) {
			names = append(names, info.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// manifest finds the manifest for name. Builtins shadow script plugins of
// the same name.
func (m *Manager) manifest(name string) (*Manifest, error) {
	if h, ok := m.Get(name); ok {
		return h.Manifest(), nil
	}
	if _, ok := Builtin(name); ok {
		return builtinManifest(name), nil
	}
	info, err := m.loader.FindPlugin(name)
	if err != nil {
		return nil, err
	}
	return info.Manifest, nil
}

func (m *Manager) settings(name string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Settings[name]
}

// Load creates the host for name and builds its vtable without activating
// it.
func (m *Manager) Load(ctx context.Context, name string) (*Host, error) {
	if _, ok := m.Get(name); ok {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}

	manifest, err := m.manifest(name)
	if err != nil {
		return nil, err
	}
	host, err := NewHost(manifest,
		WithExecutionTimeout(m.config.ExecutionTimeout),
		WithHostLogger(m.logger),
		WithSettings(m.settings(name)),
	)
	if err != nil {
		return nil, err
	}
	if err := host.Load(ctx, m.core); err != nil {
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return nil, fmt.Errorf("failed to load plugin %q: %w", name, err)
	}

	m.mu.Lock()
	m.hosts[name] = host
	m.mu.Unlock()

	m.emitEvent(ManagerEvent{Type: EventPluginLoaded, Plugin: name, ID: host.ID()})
	return host, nil
}

// Unload deactivates name if needed and discards its host.
func (m *Manager) Unload(name string) error {
	host, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("plugin %q: %w", name, ErrNotLoaded)
	}
	if host.State() == StateActive {
		if err := m.Deactivate(name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.hosts, name)
	m.mu.Unlock()

	id := host.ID()
	if err := host.Unload(); err != nil {
		return fmt.Errorf("failed to unload plugin %q: %w", name, err)
	}
	m.emitEvent(ManagerEvent{Type: EventPluginUnloaded, Plugin: name, ID: id})
	return nil
}

// Activate loads and activates names in dependency order. Plugins already
// active are skipped. A plugin whose dependency is missing or failed is
// not activated; the others still are, and every failure is returned
// joined.
func (m *Manager) Activate(ctx context.Context, names ...string) error {
	var (
		errs      []error
		want      []string
		manifests = make(map[string]*Manifest)
	)
	for _, name := range names {
		if m.IsActive(name) || manifests[name] != nil {
			continue
		}
		mf, err := m.manifest(name)
		if err != nil {
			errs = append(errs, err)
			m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
			continue
		}
		manifests[name] = mf
		want = append(want, name)
	}

	order, err := activationOrder(want, manifests)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	failed := make(map[string]bool)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if dep := m.missingDependency(manifests[name], failed); dep != "" {
			failed[name] = true
			err := fmt.Errorf("plugin %q: %w: %s", name, ErrDependencyNotFound, dep)
			errs = append(errs, err)
			m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
			continue
		}
		if err := m.activate(ctx, name); err != nil {
			failed[name] = true
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// missingDependency returns the first dependency of mf that is not active.
// Dependencies in the same batch are ordered first, so by the time mf comes
// up they are either active or failed.
func (m *Manager) missingDependency(mf *Manifest, failed map[string]bool) string {
	for _, dep := range mf.Depends {
		if failed[dep] || !m.IsActive(dep) {
			return dep
		}
	}
	return ""
}

// activate loads name if needed and runs its init hooks on the core.
func (m *Manager) activate(ctx context.Context, name string) error {
	host, ok := m.Get(name)
	if !ok {
		var err error
		if host, err = m.Load(ctx, name); err != nil {
			return err
		}
	}

	err := m.core.ActivatePlugin(host.VTable())
	host.markActive(err)
	if err != nil {
		// A failed activation leaves nothing installed; drop the host so a
		// later attempt starts from a fresh load.
		m.mu.Lock()
		delete(m.hosts, name)
		m.mu.Unlock()
		_ = host.Unload()
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return err
	}

	m.mu.Lock()
	m.active = append(m.active, name)
	m.mu.Unlock()

	m.emitEvent(ManagerEvent{Type: EventPluginActivated, Plugin: name, ID: host.ID()})
	return nil
}

// Deactivate runs the fini hooks of name. It fails with ErrRequired while
// another active plugin depends on it.
func (m *Manager) Deactivate(name string) error {
	host, ok := m.Get(name)
	if !ok || host.State() != StateActive {
		return fmt.Errorf("plugin %q: %w", name, core.ErrPluginNotActive)
	}
	if users := m.dependents(name, false); len(users) > 0 {
		return fmt.Errorf("plugin %q: %w: %v", name, ErrRequired, users)
	}
	return m.deactivate(host)
}

func (m *Manager) deactivate(host *Host) error {
	name := host.Name()
	err := m.core.DeactivatePlugin(name)
	host.markInactive()

	m.mu.Lock()
	if i := slices.Index(m.active, name); i >= 0 {
		m.active = slices.Delete(m.active, i, i+1)
	}
	m.mu.Unlock()

	if err != nil {
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, ID: host.ID(), Error: err})
		return err
	}
	m.emitEvent(ManagerEvent{Type: EventPluginDeactivated, Plugin: name, ID: host.ID()})
	return nil
}

// dependents returns the active plugins that depend on name, in activation
// order. With transitive set, plugins depending on those are included too.
func (m *Manager) dependents(name string, transitive bool) []string {
	m.mu.RLock()
	active := slices.Clone(m.active)
	m.mu.RUnlock()

	needed := map[string]bool{name: true}
	var out []string
	for _, a := range active {
		if a == name {
			continue
		}
		host, ok := m.Get(a)
		if !ok {
			continue
		}
		for dep := range needed {
			if host.Manifest().Requires(dep) {
				out = append(out, a)
				if transitive {
					needed[a] = true
				}
				break
			}
		}
	}
	return out
}

// DeactivateAll deactivates every plugin, newest first, and unloads them.
func (m *Manager) DeactivateAll() error {
	m.mu.RLock()
	names := slices.Clone(m.active)
	m.mu.RUnlock()

	var errs []error
	for _, name := range slices.Backward(names) {
		if host, ok := m.Get(name); ok {
			if err := m.deactivate(host); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close deactivates and unloads every plugin.
func (m *Manager) Close() error {
	errs := []error{m.DeactivateAll()}

	m.mu.RLock()
	names := make([]string, 0, len(m.hosts))
	for name := range m.hosts {
		names = append(names, name)
	}
	m.mu.RUnlock()
	slices.Sort(names)

	for _, name := range names {
		errs = append(errs, m.Unload(name))
	}
	return errors.Join(errs...)
}

// Reload replaces name with a freshly loaded instance. Active plugins that
// depend on it are deactivated first and activated again afterwards.
func (m *Manager) Reload(ctx context.Context, name string) error {
	host, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("plugin %q: %w", name, ErrNotLoaded)
	}
	wasActive := host.State() == StateActive
	users := m.dependents(name, true)

	for _, u := range slices.Backward(users) {
		if h, ok := m.Get(u); ok {
			if err := m.deactivate(h); err != nil {
				return fmt.Errorf("reload %s: %w", name, err)
			}
		}
	}
	if wasActive {
		if err := m.deactivate(host); err != nil {
			return fmt.Errorf("reload %s: %w", name, err)
		}
	}
	if err := m.Unload(name); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	m.loader.Refresh()

	if _, err := m.Load(ctx, name); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	if wasActive {
		if err := m.Activate(ctx, append([]string{name}, users...)...); err != nil {
			return fmt.Errorf("reload %s: %w", name, err)
		}
	}

	h, _ := m.Get(name)
	m.emitEvent(ManagerEvent{Type: EventPluginReloaded, Plugin: name, ID: h.ID()})
	return nil
}

// SetActive makes names the set of active plugins: plugins not listed are
// deactivated and unloaded, newest first, then the listed ones are
// activated. Plugins that stay active are left alone.
func (m *Manager) SetActive(ctx context.Context, names []string) error {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}

	var errs []error
	for _, name := range slices.Backward(m.Active()) {
		if keep[name] {
			continue
		}
		host, ok := m.Get(name)
		if !ok {
			continue
		}
		if err := m.deactivate(host); err != nil {
			errs = append(errs, err)
		}
		if err := m.Unload(name); err != nil {
			errs = append(errs, err)
		}
	}

	if err := m.Activate(ctx, names...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Get returns the host of a loaded plugin.
func (m *Manager) Get(name string) (*Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hosts[name]
	return h, ok
}

// IsActive reports whether name is active.
func (m *Manager) IsActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.active, name)
}

// Active returns the active plugins in activation order.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.active)
}

// List returns a snapshot of every loaded plugin, active ones first in
// activation order.
func (m *Manager) List() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stats, 0, len(m.hosts))
	for _, name := range m.active {
		out = append(out, m.hosts[name].Stats())
	}
	var rest []string
	for name := range m.hosts {
		if !slices.Contains(m.active, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	for _, name := range rest {
		out = append(out, m.hosts[name].Stats())
	}
	return out
}

// Subscribe adds a handler for manager events.
func (m *Manager) Subscribe(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

func (m *Manager) emitEvent(event ManagerEvent) {
	m.mu.RLock()
	handlers := slices.Clone(m.handlers)
	m.mu.RUnlock()

	switch event.Type {
	case EventPluginError:
		m.logger.Error("plugin %s: %v", event.Plugin, event.Error)
	default:
		m.logger.Debug("plugin %s %s", event.Plugin, event.Type)
	}

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("plugin event handler panicked: %v", r)
				}
			}()
			h(event)
		}()
	}
}
