package plugin

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/stormwm/internal/core"
	plua "github.com/dshills/stormwm/internal/plugin/lua"
)

// Host holds one plugin: its manifest, the vtable the core runs, and for
// script plugins the Lua state behind it.
type Host struct {
	name     string
	manifest *Manifest
	factory  Factory

	// id changes every time the plugin is loaded, so a reload can be told
	// apart from the instance it replaced.
	id       uuid.UUID
	loadedAt time.Time

	script *plua.Script
	vtable *core.PluginVTable

	state State
	err   error

	timeout  time.Duration
	logger   core.Logger
	settings map[string]any
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithExecutionTimeout bounds each call into a script plugin.
func WithExecutionTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		h.timeout = d
	}
}

// WithHostLogger sets the logger scripts write to.
func WithHostLogger(l core.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSettings overrides keys of the manifest's config table. Script
// plugins receive the result in setup.
func WithSettings(settings map[string]any) HostOption {
	return func(h *Host) {
		h.settings = settings
	}
}

// NewHost creates a host for the plugin described by manifest. Builtin
// manifests must have a registered factory.
func NewHost(manifest *Manifest, opts ...HostOption) (*Host, error) {
	if manifest == nil {
		return nil, ErrNilManifest
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		name:     manifest.Name,
		manifest: manifest,
		logger:   nopLogger{},
	}
	if manifest.Builtin {
		f, ok := Builtin(manifest.Name)
		if !ok {
			return nil, fmt.Errorf("%w: builtin %s", ErrPluginNotFound, manifest.Name)
		}
		h.factory = f
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Name returns the plugin name.
func (h *Host) Name() string { return h.name }

// ID returns the identifier of the current load, or uuid.Nil when unloaded.
func (h *Host) ID() uuid.UUID { return h.id }

// Manifest returns the manifest.
func (h *Host) Manifest() *Manifest { return h.manifest }

// State returns the lifecycle state.
func (h *Host) State() State { return h.state }

// Err returns the last load or activation error.
func (h *Host) Err() error { return h.err }

// LoadedAt returns when the plugin was last loaded.
func (h *Host) LoadedAt() time.Time { return h.loadedAt }

// Builtin reports whether the plugin is compiled in.
func (h *Host) Builtin() bool { return h.factory != nil }

// Script returns the Lua plugin, or nil for builtins and unloaded hosts.
func (h *Host) Script() *plua.Script { return h.script }

// VTable returns the vtable built by Load.
func (h *Host) VTable() *core.PluginVTable { return h.vtable }

// Load builds the vtable. For a script plugin this runs the script.
func (h *Host) Load(ctx context.Context, c *core.Core) error {
	if h.state != StateUnloaded && h.state != StateError {
		return ErrAlreadyLoaded
	}
	_ = h.unloadScript()

	vt, err := h.build(ctx, c)
	if err != nil {
		h.state = StateError
		h.err = err
		return err
	}
	if vt.Name == "" {
		vt.Name = h.name
	}
	if vt.Name != h.name {
		_ = h.unloadScript()
		h.state = StateError
		h.err = fmt.Errorf("plugin %s: vtable names %q", h.name, vt.Name)
		return h.err
	}

	h.vtable = vt
	h.id = uuid.New()
	h.loadedAt = time.Now()
	h.state = StateLoaded
	h.err = nil
	return nil
}

func (h *Host) build(ctx context.Context, c *core.Core) (*core.PluginVTable, error) {
	if h.factory != nil {
		vt := h.factory()
		if vt == nil {
			return nil, fmt.Errorf("plugin %s: %w", h.name, ErrNoEntryPoint)
		}
		return vt, nil
	}

	script, err := plua.LoadScript(ctx, c, plua.ScriptConfig{
		Name:    h.name,
		Path:    h.manifest.MainPath(),
		Config:  h.config(),
		Logger:  h.logger,
		Timeout: h.timeout,
	})
	if err != nil {
		return nil, err
	}
	h.script = script
	return script.VTable(), nil
}

func (h *Host) config() map[string]any {
	if len(h.settings) == 0 {
		return h.manifest.Config
	}
	cfg := maps.Clone(h.manifest.Config)
	if cfg == nil {
		cfg = make(map[string]any, len(h.settings))
	}
	maps.Copy(cfg, h.settings)
	return cfg
}

// markActive records the outcome of activating the vtable.
func (h *Host) markActive(err error) {
	if err != nil {
		h.state = StateError
		h.err = err
		return
	}
	h.state = StateActive
	h.err = nil
}

// markInactive records that the core ran the fini hooks.
func (h *Host) markInactive() {
	if h.state == StateActive {
		h.state = StateLoaded
	}
}

// Unload drops the vtable and closes the Lua state. It must not be called
// while the plugin is active.
func (h *Host) Unload() error {
	if h.state == StateActive {
		return fmt.Errorf("plugin %s: %w", h.name, core.ErrPluginActive)
	}
	err := h.unloadScript()
	h.vtable = nil
	h.id = uuid.Nil
	h.state = StateUnloaded
	return err
}

func (h *Host) unloadScript() error {
	if h.script == nil {
		return nil
	}
	err := h.script.Close()
	h.script = nil
	return err
}

// Stats is a snapshot of a host for status output.
type Stats struct {
	Name     string
	ID       string
	State    string
	Builtin  bool
	Version  string
	Timers   int
	Wraps    int
	LoadedAt time.Time
	Error    string
}

// Stats returns a snapshot of the host.
func (h *Host) Stats() Stats {
	st := Stats{
		Name:     h.name,
		State:    h.state.String(),
		Builtin:  h.Builtin(),
		Version:  h.manifest.Version,
		LoadedAt: h.loadedAt,
	}
	if h.id != uuid.Nil {
		st.ID = h.id.String()
	}
	if h.script != nil {
		st.Timers = h.script.Timers()
		st.Wraps = h.script.Wraps()
	}
	if h.err != nil {
		st.Error = h.err.Error()
	}
	return st
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
