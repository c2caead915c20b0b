package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/dshills/stormwm/internal/core"
)

// Manifest describes a plugin and what it must be loaded with.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`

	// Main is the script to run, relative to the plugin directory.
	Main string `yaml:"main"`

	// Depends lists plugins that must be active first.
	Depends []string `yaml:"depends"`

	// LoadAfter lists plugins that, when activated together with this one,
	// are activated first. Unlike Depends they are not required.
	LoadAfter []string `yaml:"load_after"`

	// ABI is the core ABI the plugin was written against. Zero means the
	// current one.
	ABI int `yaml:"abi"`

	// Config is handed to the plugin's setup function.
	Config map[string]any `yaml:"config"`

	// Builtin is set for plugins compiled into the binary.
	Builtin bool `yaml:"-"`

	path string
}

// Manifest file names, in the order they are looked for.
const (
	ManifestYAML = "plugin.yaml"
	ManifestYML  = "plugin.yml"
	ManifestJSON = "plugin.json"
)

// Validation errors.
var (
	ErrMissingName     = errors.New("manifest: name is required")
	ErrInvalidName     = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrInvalidVersion  = errors.New("manifest: version must be valid semver")
	ErrInvalidMain     = errors.New("manifest: main must be a .lua file")
	ErrInvalidDepends  = errors.New("manifest: invalid dependency")
	ErrInvalidManifest = errors.New("manifest: malformed")
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest reads a manifest. The format is chosen by extension: .json
// files are read as JSON, anything else as YAML.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m *Manifest
	if filepath.Ext(path) == ".json" {
		m, err = parseJSONManifest(data)
	} else {
		m, err = parseYAMLManifest(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.path = filepath.Dir(path)
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseYAMLManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// parseJSONManifest reads plugin.json. Older manifests spell the
// dependency lists "dependencies" and "loadAfter"; both spellings work.
func parseJSONManifest(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrInvalidManifest)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidManifest)
	}

	m := &Manifest{
		Name:        doc.Get("name").String(),
		Version:     doc.Get("version").String(),
		Description: doc.Get("description").String(),
		Author:      doc.Get("author").String(),
		Main:        doc.Get("main").String(),
		ABI:         int(doc.Get("abi").Int()),
		Depends:     stringList(firstOf(doc, "depends", "dependencies")),
		LoadAfter:   stringList(firstOf(doc, "load_after", "loadAfter")),
	}
	if cfg := doc.Get("config"); cfg.IsObject() {
		m.Config, _ = cfg.Value().(map[string]any)
	}
	return m, nil
}

func firstOf(doc gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := doc.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}

// NewManifestMinimal creates the manifest of a plugin that has none: a
// single script, or a directory holding only its entry point.
func NewManifestMinimal(name, dir, main string) *Manifest {
	return &Manifest{
		Name:    name,
		Version: "0.0.0",
		Main:    main,
		path:    dir,
	}
}

func builtinManifest(name string) *Manifest {
	return &Manifest{
		Name:    name,
		Version: "0.0.0",
		Builtin: true,
	}
}

func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks the manifest.
func (m *Manifest) Validate() error {
	if m == nil {
		return ErrNilManifest
	}
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}
	if !m.Builtin && filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}
	if m.ABI != 0 && m.ABI != core.ABIVersion {
		return fmt.Errorf("%s: %w: plugin %d, core %d", m.Name, core.ErrABIMismatch, m.ABI, core.ABIVersion)
	}

	for _, list := range [][]string{m.Depends, m.LoadAfter} {
		for i, dep := range list {
			if dep == m.Name || !namePattern.MatchString(dep) {
				return fmt.Errorf("%w: %q", ErrInvalidDepends, dep)
			}
			if slices.Contains(list[:i], dep) {
				return fmt.Errorf("%w: %q listed twice", ErrInvalidDepends, dep)
			}
		}
	}
	return nil
}

// Path returns the plugin directory.
func (m *Manifest) Path() string {
	return m.path
}

// MainPath returns the absolute path of the entry script.
func (m *Manifest) MainPath() string {
	if filepath.IsAbs(m.Main) {
		return m.Main
	}
	return filepath.Join(m.path, m.Main)
}

// Requires reports whether m depends on name.
func (m *Manifest) Requires(name string) bool {
	return slices.Contains(m.Depends, name)
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Depends = slices.Clone(m.Depends)
	c.LoadAfter = slices.Clone(m.LoadAfter)
	if m.Config != nil {
		c.Config = make(map[string]any, len(m.Config))
		for k, v := range m.Config {
			c.Config[k] = v
		}
	}
	return &c
}
