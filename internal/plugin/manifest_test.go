package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dshills/stormwm/internal/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadManifestYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestYAML)
	writeFile(t, path, `
name: wobble
version: 1.2.0
description: Wobbly windows
author: someone
main: wobble.lua
depends: [fps]
load_after: [dim]
abi: 20240601
config:
  amplitude: 4
  screens: [left, right]
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}

	if m.Name != "wobble" {
		t.Errorf("Name = %q, want %q", m.Name, "wobble")
	}
	if m.Version != "1.2.0" {
		t.Errorf("Version = %q, want %q", m.Version, "1.2.0")
	}
	if m.Description != "Wobbly windows" {
		t.Errorf("Description = %q", m.Description)
	}
	if !reflect.DeepEqual(m.Depends, []string{"fps"}) {
		t.Errorf("Depends = %v, want [fps]", m.Depends)
	}
	if !reflect.DeepEqual(m.LoadAfter, []string{"dim"}) {
		t.Errorf("LoadAfter = %v, want [dim]", m.LoadAfter)
	}
	if m.ABI != core.ABIVersion {
		t.Errorf("ABI = %d, want %d", m.ABI, core.ABIVersion)
	}
	if m.Config["amplitude"] != 4 {
		t.Errorf("Config[amplitude] = %v, want 4", m.Config["amplitude"])
	}
	if m.Path() != dir {
		t.Errorf("Path() = %q, want %q", m.Path(), dir)
	}
	if want := filepath.Join(dir, "wobble.lua"); m.MainPath() != want {
		t.Errorf("MainPath() = %q, want %q", m.MainPath(), want)
	}
}

func TestLoadManifestJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestJSON)
	writeFile(t, path, `{
		"name": "wobble",
		"version": "1.0.0",
		"dependencies": ["fps"],
		"loadAfter": ["dim", "fade"],
		"config": {"amplitude": 4, "label": "w"}
	}`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if !reflect.DeepEqual(m.Depends, []string{"fps"}) {
		t.Errorf("Depends = %v, want [fps]", m.Depends)
	}
	if !reflect.DeepEqual(m.LoadAfter, []string{"dim", "fade"}) {
		t.Errorf("LoadAfter = %v, want [dim fade]", m.LoadAfter)
	}
	if m.Main != "init.lua" {
		t.Errorf("Main = %q, want default init.lua", m.Main)
	}
	if m.Config["amplitude"] != float64(4) || m.Config["label"] != "w" {
		t.Errorf("Config = %v", m.Config)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestYAML)
	writeFile(t, path, "name: bare\n")

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if m.Version != "0.0.0" {
		t.Errorf("Version = %q, want 0.0.0", m.Version)
	}
	if m.Main != "init.lua" {
		t.Errorf("Main = %q, want init.lua", m.Main)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"invalid json", ManifestJSON, `invalid json`, ErrInvalidManifest},
		{"json array", ManifestJSON, `["x"]`, ErrInvalidManifest},
		{"invalid yaml", ManifestYAML, "name: [unclosed", ErrInvalidManifest},
		{"missing name", ManifestYAML, "version: 1.0.0\n", ErrMissingName},
		{"abi mismatch", ManifestYAML, "name: old\nabi: 1\n", core.ErrABIMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, path, tt.content)
			_, err := LoadManifest(path)
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadManifest() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadManifestNotFound(t *testing.T) {
	if _, err := LoadManifest("/nonexistent/path/plugin.yaml"); err == nil {
		t.Error("LoadManifest() with nonexistent file should return error")
	}
}

func TestNewManifestMinimal(t *testing.T) {
	m := NewManifestMinimal("fade", "/plugins", "fade.lua")

	if err := m.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if m.MainPath() != filepath.Join("/plugins", "fade.lua") {
		t.Errorf("MainPath() = %q", m.MainPath())
	}
}

func TestManifestValidate(t *testing.T) {
	valid := func() *Manifest {
		return &Manifest{Name: "wobble", Version: "1.0.0", Main: "init.lua"}
	}

	tests := []struct {
		name   string
		modify func(m *Manifest)
		want   error
	}{
		{"valid", func(*Manifest) {}, nil},
		{"missing name", func(m *Manifest) { m.Name = "" }, ErrMissingName},
		{"uppercase name", func(m *Manifest) { m.Name = "Wobble" }, ErrInvalidName},
		{"name with underscore", func(m *Manifest) { m.Name = "wob_ble" }, ErrInvalidName},
		{"trailing hyphen", func(m *Manifest) { m.Name = "wobble-" }, ErrInvalidName},
		{"single letter", func(m *Manifest) { m.Name = "w" }, nil},
		{"bad version", func(m *Manifest) { m.Version = "1.0" }, ErrInvalidVersion},
		{"prerelease", func(m *Manifest) { m.Version = "1.0.0-beta.1" }, nil},
		{"main not lua", func(m *Manifest) { m.Main = "init.py" }, ErrInvalidMain},
		{"builtin without main", func(m *Manifest) { m.Main = ""; m.Builtin = true }, nil},
		{"current abi", func(m *Manifest) { m.ABI = core.ABIVersion }, nil},
		{"old abi", func(m *Manifest) { m.ABI = core.ABIVersion - 1 }, core.ErrABIMismatch},
		{"self dependency", func(m *Manifest) { m.Depends = []string{"wobble"} }, ErrInvalidDepends},
		{"bad dependency", func(m *Manifest) { m.Depends = []string{"Bad Name"} }, ErrInvalidDepends},
		{"duplicate dependency", func(m *Manifest) { m.Depends = []string{"fps", "fps"} }, ErrInvalidDepends},
		{"load after self", func(m *Manifest) { m.LoadAfter = []string{"wobble"} }, ErrInvalidDepends},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.modify(m)
			err := m.Validate()
			if tt.want == nil && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}

	var nilManifest *Manifest
	if err := nilManifest.Validate(); !errors.Is(err, ErrNilManifest) {
		t.Errorf("nil Validate() error = %v, want ErrNilManifest", err)
	}
}

func TestManifestRequires(t *testing.T) {
	m := &Manifest{Name: "a", Depends: []string{"b"}, LoadAfter: []string{"c"}}

	if !m.Requires("b") {
		t.Error("Requires(b) = false, want true")
	}
	if m.Requires("c") {
		t.Error("Requires(c) = true; load_after is not a dependency")
	}
}

func TestManifestClone(t *testing.T) {
	m := &Manifest{
		Name:    "a",
		Depends: []string{"b"},
		Config:  map[string]any{"k": 1},
	}
	c := m.Clone()
	c.Depends[0] = "x"
	c.Config["k"] = 2

	if m.Depends[0] != "b" {
		t.Error("Clone() shares Depends")
	}
	if m.Config["k"] != 1 {
		t.Error("Clone() shares Config")
	}

	var nilManifest *Manifest
	if nilManifest.Clone() != nil {
		t.Error("nil Clone() should be nil")
	}
}
