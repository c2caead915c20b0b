package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/stormwm/internal/config/watcher"
	"github.com/dshills/stormwm/internal/plugin"
	"github.com/dshills/stormwm/internal/plugins/fps"
)

const baseConfig = `
[log]
level = "info"

[plugins]
active = ["tuned"]
hot_reload = false

[plugin.tuned]
level = 3
`

func luaGlobal(t *testing.T, e *testEnv, name, global string) string {
	t.Helper()
	h, ok := e.app.Plugins().Get(name)
	if !ok || h.Script() == nil {
		t.Fatalf("plugin %s is not a loaded script", name)
	}
	return h.Script().State().L.GetGlobal(global).String()
}

func newReloadEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tuned.lua"), `
		function setup(cfg)
			level = cfg.level
		end
	`)
	return newTestApp(t, baseConfig, map[string]any{"plugins.paths": []string{dir}})
}

func TestReloadConfig(t *testing.T) {
	e := newReloadEnv(t)
	if got := luaGlobal(t, e, "tuned", "level"); got != "3" {
		t.Fatalf("level = %s, want 3", got)
	}

	writeFile(t, e.cfgPath, `
[log]
level = "debug"

[display]
refresh_rate = 30

[plugins]
active = ["tuned", "fps"]
hot_reload = false

[plugin.tuned]
level = 5
`)
	if err := e.app.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}

	if got := e.app.Logger().Level(); got != LogLevelDebug {
		t.Errorf("log level = %v, want %v", got, LogLevelDebug)
	}
	if got := e.app.Core().Display().Screen(0).Pacer().RefreshRate(); got != 30 {
		t.Errorf("refresh rate = %d, want 30", got)
	}
	if !e.app.Plugins().IsActive(fps.Name) {
		t.Errorf("active = %v, want fps added", e.app.Plugins().Active())
	}
	if got := luaGlobal(t, e, "tuned", "level"); got != "5" {
		t.Errorf("level = %s after reload, want 5", got)
	}
	if got := e.app.Config().Display.RefreshRate; got != 30 {
		t.Errorf("Config().Display.RefreshRate = %d, want 30", got)
	}
}

func TestReloadConfigKeepsStateOnError(t *testing.T) {
	e := newReloadEnv(t)
	before := e.app.Config()

	writeFile(t, e.cfgPath, "[log]\nlevel = \"loud\"\n")
	err := e.app.ReloadConfig()
	if err == nil {
		t.Fatal("ReloadConfig() error = nil")
	}
	if !strings.HasPrefix(err.Error(), "config: reload:") {
		t.Errorf("ReloadConfig() error = %v, want a config reload error", err)
	}
	if e.app.Config() != before {
		t.Error("Config() replaced after a failed reload")
	}
	if !e.app.Plugins().IsActive("tuned") {
		t.Error("tuned deactivated by a failed reload")
	}
}

func TestReloadConfigUnchanged(t *testing.T) {
	e := newReloadEnv(t)
	before := e.app.Config()
	if err := e.app.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if e.app.Config() != before {
		t.Error("Config() replaced although nothing changed")
	}
}

func TestReloadConfigDeactivates(t *testing.T) {
	e := newReloadEnv(t)
	writeFile(t, e.cfgPath, "[plugins]\nactive = []\nhot_reload = false\n")
	if err := e.app.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if got := e.app.Plugins().Active(); len(got) != 0 {
		t.Errorf("Active() = %v, want none", got)
	}
	if got := e.app.Core().Plugins(); len(got) != 0 {
		t.Errorf("core plugins = %v, want none", got)
	}
}

func TestScheduleReloadDebounces(t *testing.T) {
	e := newReloadEnv(t)
	sched := e.app.Core().Scheduler()
	timers := sched.TimeoutCount()

	writeFile(t, e.cfgPath, strings.Replace(baseConfig, `"info"`, `"warn"`, 1))
	for range 3 {
		e.app.fileChanged(watcher.Event{Path: e.cfgPath, Op: watcher.OpWrite})
		e.runOnce(t)
		e.clock.Advance(DefaultReloadDelay / 2)
	}
	if got := sched.TimeoutCount(); got != timers+1 {
		t.Fatalf("TimeoutCount() = %d, want %d", got, timers+1)
	}
	if got := e.app.Logger().Level(); got != LogLevelInfo {
		t.Fatalf("reload ran before the delay: level %v", got)
	}

	e.clock.Advance(DefaultReloadDelay)
	e.runOnce(t)
	if got := e.app.Logger().Level(); got != LogLevelWarn {
		t.Errorf("log level = %v, want %v", got, LogLevelWarn)
	}
	if got := sched.TimeoutCount(); got != timers {
		t.Errorf("TimeoutCount() = %d after reload, want %d", got, timers)
	}
}

func TestReloadScripts(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "counter.lua")
	writeFile(t, script, "n = 1\n")
	e := newTestApp(t, "[plugins]\nactive = [\"counter\", \"later\"]\nhot_reload = false\n",
		map[string]any{"plugins.paths": []string{dir}})

	if e.app.Plugins().IsActive("later") {
		t.Fatal("later active before its script exists")
	}

	writeFile(t, script, "n = 2\n")
	writeFile(t, filepath.Join(dir, "later.lua"), "ready = true\n")
	if err := e.app.reloadScripts([]string{script, filepath.Join(dir, "later.lua")}); err != nil {
		t.Fatalf("reloadScripts() error = %v", err)
	}
	if got := luaGlobal(t, e, "counter", "n"); got != "2" {
		t.Errorf("n = %s after reload, want 2", got)
	}
	if !e.app.Plugins().IsActive("later") {
		t.Errorf("Active() = %v, want later activated", e.app.Plugins().Active())
	}
}

func TestHotReloadFromDisk(t *testing.T) {
	e := newTestApp(t, "[log]\nlevel = \"info\"\n", nil)
	if e.app.Watcher() == nil {
		t.Fatal("Watcher() = nil with hot_reload on")
	}

	writeFile(t, e.cfgPath, "[log]\nlevel = \"error\"\n")
	deadline := time.Now().Add(5 * time.Second)
	for e.app.Logger().Level() != LogLevelError {
		if time.Now().After(deadline) {
			t.Fatalf("config change not applied; log:\n%s", e.log.String())
		}
		e.runOnce(t)
		e.clock.Advance(50 * time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}

	// Turning hot reload off stops the watcher.
	writeFile(t, e.cfgPath, "[log]\nlevel = \"error\"\n[plugins]\nhot_reload = false\n")
	if err := e.app.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if e.app.Watcher() != nil {
		t.Error("Watcher() != nil after hot_reload was turned off")
	}
}

func TestAffects(t *testing.T) {
	search := []string{"/p"}
	dirPlugin := plugin.NewManifestMinimal("wobble", "/p/wobble", "main.lua")
	filePlugin := plugin.NewManifestMinimal("solo", "/p", "solo.lua")

	tests := []struct {
		name string
		mf   *plugin.Manifest
		path string
		want bool
	}{
		{"main script", dirPlugin, "/p/wobble/main.lua", true},
		{"helper in plugin dir", dirPlugin, "/p/wobble/lib/util.lua", true},
		{"sibling plugin", dirPlugin, "/p/wobbler/main.lua", false},
		{"single file", filePlugin, "/p/solo.lua", true},
		{"other file in search path", filePlugin, "/p/other.lua", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := affects(tt.mf, search, tt.path); got != tt.want {
				t.Errorf("affects(%s, %s) = %v, want %v", tt.mf.Name, tt.path, got, tt.want)
			}
		})
	}
}
