package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader discovers script plugins on the filesystem.
type Loader struct {
	// Search paths, checked in order. The first plugin found under a name
	// wins.
	paths []string

	discovered map[string]*PluginInfo
}

// PluginInfo is what discovery learned about one plugin.
type PluginInfo struct {
	Name     string
	Path     string
	Manifest *Manifest
	Error    error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = paths
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		paths:      DefaultPluginPaths(),
		discovered: make(map[string]*PluginInfo),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultPluginPaths returns $XDG_CONFIG_HOME/stormwm/plugins and
// ~/.local/share/stormwm/plugins.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 2)

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "stormwm", "plugins"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "share", "stormwm", "plugins"))
	}
	return paths
}

// Paths returns the search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// AddPath appends a search path.
func (l *Loader) AddPath(path string) {
	l.paths = append(l.paths, path)
}

// Discover scans every search path and returns the plugins found, sorted by
// name. Plugins with unreadable manifests are returned with Error set.
func (l *Loader) Discover() ([]*PluginInfo, error) {
	l.discovered = make(map[string]*PluginInfo)

	for _, base := range l.paths {
		if err := l.discoverInPath(base); err != nil {
			return nil, fmt.Errorf("scan %s: %w", base, err)
		}
	}

	plugins := make([]*PluginInfo, 0, len(l.discovered))
	for _, info := range l.discovered {
		plugins = append(plugins, info)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name < plugins[j].Name
	})
	return plugins, nil
}

func (l *Loader) discoverInPath(base string) error {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		var info *PluginInfo
		if entry.IsDir() {
			info = l.inspectPlugin(entry.Name(), filepath.Join(base, entry.Name()))
		} else if filepath.Ext(entry.Name()) == ".lua" {
			info = singleFile(base, entry.Name())
		} else {
			continue
		}
		if _, exists := l.discovered[info.Name]; !exists {
			l.discovered[info.Name] = info
		}
	}
	return nil
}

func singleFile(dir, file string) *PluginInfo {
	name := strings.TrimSuffix(file, ".lua")
	return &PluginInfo{
		Name:     name,
		Path:     dir,
		Manifest: NewManifestMinimal(name, dir, file),
	}
}

// inspectPlugin looks for a manifest in dir, then for an entry script.
func (l *Loader) inspectPlugin(name, dir string) *PluginInfo {
	info := &PluginInfo{Name: name, Path: dir}

	for _, file := range []string{ManifestYAML, ManifestYML, ManifestJSON} {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := LoadManifest(path)
		if err != nil {
			info.Error = fmt.Errorf("invalid manifest: %w", err)
			return info
		}
		info.Manifest = m
		info.Name = m.Name
		return info
	}

	for _, main := range []string{"init.lua", "plugin.lua"} {
		if _, err := os.Stat(filepath.Join(dir, main)); err == nil {
			info.Manifest = NewManifestMinimal(name, dir, main)
			return info
		}
	}

	info.Error = ErrNoEntryPoint
	return info
}

// Get returns a plugin found by the last Discover.
func (l *Loader) Get(name string) (*PluginInfo, bool) {
	info, ok := l.discovered[name]
	return info, ok
}

// Refresh forgets everything discovered so the next lookup reads the
// filesystem again.
func (l *Loader) Refresh() {
	l.discovered = make(map[string]*PluginInfo)
}

// FindPlugin returns the plugin called name, looking on disk if it was not
// discovered yet.
func (l *Loader) FindPlugin(name string) (*PluginInfo, error) {
	if info, ok := l.discovered[name]; ok {
		if info.Error != nil {
			return nil, fmt.Errorf("plugin %q: %w", name, info.Error)
		}
		return info, nil
	}

	for _, base := range l.paths {
		dir := filepath.Join(base, name)
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			info := l.inspectPlugin(name, dir)
			if info.Error != nil {
				return nil, fmt.Errorf("plugin %q: %w", name, info.Error)
			}
			if info.Name != name {
				return nil, fmt.Errorf("plugin %q: manifest names %q: %w", name, info.Name, ErrInvalidManifest)
			}
			l.discovered[name] = info
			return info, nil
		}

		if _, err := os.Stat(filepath.Join(base, name+".lua")); err == nil {
			info := singleFile(base, name+".lua")
			l.discovered[name] = info
			return info, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

// Watched returns the directories whose contents affect discovery: every
// search path that exists and every discovered plugin directory.
func (l *Loader) Watched() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if seen[dir] {
			return
		}
		if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	for _, p := range l.paths {
		add(p)
	}
	for _, info := range l.discovered {
		add(info.Path)
	}
	sort.Strings(dirs)
	return dirs
}

// Errors returns the discovered plugins that could not be read.
func (l *Loader) Errors() []*PluginInfo {
	var errored []*PluginInfo
	for _, info := range l.discovered {
		if info.Error != nil {
			errored = append(errored, info)
		}
	}
	sort.Slice(errored, func(i, j int) bool {
		return errored[i].Name < errored[j].Name
	})
	return errored
}
