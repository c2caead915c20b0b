package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/stormwm/internal/config/layer"
	"github.com/dshills/stormwm/internal/config/loader"
)

// Config is the typed configuration of the window manager.
type Config struct {
	Display DisplayConfig `toml:"display"`
	Plugins PluginsConfig `toml:"plugins"`
	Log     LogConfig     `toml:"log"`
	Debug   DebugConfig   `toml:"debug"`

	// Plugin holds per-plugin settings, one table per plugin name. They
	// override the config table of the plugin's manifest.
	Plugin map[string]map[string]any `toml:"plugin,omitempty"`
}

// DisplayConfig selects and tunes the display backend.
type DisplayConfig struct {
	// Name is the backend's display string: an X display such as ":1",
	// or screen sizes such as "1024x768,800x600" for headless.
	Name    string `toml:"name"`
	Backend string `toml:"backend"`

	// RefreshRate in Hz. Zero means detect, or the default when detection
	// is off or fails.
	RefreshRate       int  `toml:"refresh_rate"`
	DetectRefreshRate bool `toml:"detect_refresh_rate"`
	SyncToVBlank      bool `toml:"sync_to_vblank"`
}

// PluginsConfig lists where plugins live and which to run.
type PluginsConfig struct {
	Paths  []string `toml:"paths"`
	Active []string `toml:"active"`

	// HotReload watches the config file and plugin directories and
	// applies changes while running.
	HotReload bool `toml:"hot_reload"`

	// Timeout bounds each call into a script plugin, in milliseconds.
	Timeout int `toml:"timeout_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// DebugConfig holds debugging aids.
type DebugConfig struct {
	// DumpPath is where SIGUSR1 writes the state dump. Empty writes it to
	// the log.
	DumpPath string `toml:"dump_path"`
}

// Backend names accepted by display.backend.
var Backends = []string{"x11", "term", "headless"}

// Log levels accepted by log.level.
var LogLevels = []string{"debug", "info", "warn", "error"}

// MaxRefreshRate bounds display.refresh_rate.
const MaxRefreshRate = 1000

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Backend:           "x11",
			DetectRefreshRate: true,
			SyncToVBlank:      true,
		},
		Plugins: PluginsConfig{
			Paths:     []string{},
			Active:    []string{},
			HotReload: true,
			Timeout:   100,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/stormwm/config.toml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stormwm", "config.toml")
}

// Validate checks every value against its allowed range.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(Backends, c.Display.Backend) {
		errs = append(errs, &ValidationError{
			Path:    "display.backend",
			Message: "must be one of " + strings.Join(Backends, ", "),
			Value:   c.Display.Backend,
		})
	}
	if c.Display.RefreshRate < 0 || c.Display.RefreshRate > MaxRefreshRate {
		errs = append(errs, &ValidationError{
			Path:    "display.refresh_rate",
			Message: fmt.Sprintf("must be between 0 and %d", MaxRefreshRate),
			Value:   c.Display.RefreshRate,
		})
	}
	if !slices.Contains(LogLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, &ValidationError{
			Path:    "log.level",
			Message: "must be one of " + strings.Join(LogLevels, ", "),
			Value:   c.Log.Level,
		})
	}
	if c.Plugins.Timeout < 0 {
		errs = append(errs, &ValidationError{
			Path:    "plugins.timeout_ms",
			Message: "must not be negative",
			Value:   c.Plugins.Timeout,
		})
	}
	return errors.Join(errs...)
}

// Option configures a Loader.
type Option func(*Loader)

// WithPath reads the configuration file at path instead of DefaultPath.
func WithPath(path string) Option {
	return func(l *Loader) {
		l.path = path
	}
}

// WithFileSystem reads files from fsys.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(l *Loader) {
		l.fsys = fsys
	}
}

// WithEnviron reads env instead of the process environment. Entries are
// KEY=VALUE.
func WithEnviron(env []string) Option {
	return func(l *Loader) {
		l.env = env
		l.envSet = true
	}
}

// WithOverride sets a dotted path from the command line. Overrides win
// over every other source.
func WithOverride(path string, value any) Option {
	return func(l *Loader) {
		layer.SetByPath(l.args, path, value)
	}
}

// Loader builds a Config from its layers: defaults, the configuration file
// with its includes, STORMWM_* variables and command-line overrides.
type Loader struct {
	mu     sync.Mutex
	path   string
	fsys   loader.FileSystem
	env    []string
	envSet bool
	args   map[string]any

	layers *layer.Manager
	files  []string
	merged map[string]any
}

// NewLoader returns a Loader. Nothing is read until Load.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		path:   DefaultPath(),
		fsys:   loader.DefaultFS(),
		args:   make(map[string]any),
		layers: layer.NewManager(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the main configuration file.
func (l *Loader) Path() string { return l.path }

// Files returns every file read by the last load, main file first. It is
// empty when the main file does not exist.
func (l *Loader) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.files)
}

// Origin returns the name of the layer that supplied path.
func (l *Loader) Origin(path string) string {
	l.mu.Lock()
	layers := l.layers
	l.mu.Unlock()
	return layers.WhichLayer(path)
}

// Load reads every layer and returns the merged, validated configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, _, err := l.Reload()
	return cfg, err
}

// Reload re-reads the file and the environment and reports which settings
// changed since the previous load. On error the previous state is kept.
func (l *Loader) Reload() (*Config, layer.Diff, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	defaults, err := toMap(Default())
	if err != nil {
		return nil, layer.Diff{}, err
	}
	tl := loader.NewTOMLLoaderWithFS(l.fsys, l.path)
	file, err := tl.Load()
	if err != nil {
		return nil, layer.Diff{}, err
	}
	el := loader.NewEnvLoader(loader.EnvPrefix)
	if l.envSet {
		el.WithEnviron(l.env)
	}
	env, err := el.Load()
	if err != nil {
		return nil, layer.Diff{}, err
	}

	next := layer.NewManager()
	next.Set(layer.New("defaults", layer.SourceDefaults, defaults))
	fl := layer.New("file", layer.SourceFile, file)
	fl.Path = l.path
	next.Set(fl)
	next.Set(layer.New("environment", layer.SourceEnv, env))
	next.Set(layer.New("arguments", layer.SourceArgs, l.args))

	merged := next.Merge()
	cfg, err := decode(merged)
	if err != nil {
		return nil, layer.Diff{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, layer.Diff{}, err
	}

	diff := layer.DiffMaps(l.merged, merged)
	l.layers = next
	l.merged = merged
	l.files = tl.Files()
	return cfg, diff, nil
}

// toMap turns cfg into the nested map form the layers use.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return loader.Parse("defaults", data)
}

// decode turns merged layers into a Config, rejecting unknown keys and
// values of the wrong type.
func decode(merged map[string]any) (*Config, error) {
	data, err := toml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	cfg := &Config{}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w:\n%s", ErrUnknownSetting, strict.String())
		}
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return cfg, nil
}
