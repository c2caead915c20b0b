package app

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/stormwm/internal/config"
	"github.com/dshills/stormwm/internal/config/layer"
	"github.com/dshills/stormwm/internal/config/watcher"
	"github.com/dshills/stormwm/internal/plugin"
)

// fileChanged runs on the watcher goroutine and hands the change to the
// loop.
func (app *Application) fileChanged(ev watcher.Event) {
	path := ev.Path
	if err := app.core.Notifier().Post(func() { app.scheduleReload(path) }); err != nil {
		app.logger.Debug("watcher: %s %s: %v", ev.Op, path, err)
	}
}

// scheduleReload records path and restarts the debounce timer, so a burst
// of writes causes a single reload.
func (app *Application) scheduleReload(path string) {
	if app.isClosed() {
		return
	}
	app.changed[path] = true

	sched := app.core.Scheduler()
	if app.reload != 0 {
		sched.RemoveTimeout(app.reload)
		app.reload = 0
	}
	d := app.opts.ReloadDelay
	h, err := sched.AddTimeout(d, d+d/2, func(any) bool {
		app.reload = 0
		app.applyChanges()
		return false
	}, nil)
	if err != nil {
		app.logger.Warn("hot reload: %v", err)
		return
	}
	app.reload = h
}

// applyChanges reloads whatever the recorded paths belong to.
func (app *Application) applyChanges() {
	paths := slices.Sorted(maps.Keys(app.changed))
	clear(app.changed)

	configFiles := append([]string{app.loader.Path()}, app.loader.Files()...)
	configChanged := false
	var scripts []string
	for _, p := range paths {
		if slices.ContainsFunc(configFiles, func(f string) bool { return samePath(f, p) }) {
			configChanged = true
			continue
		}
		scripts = append(scripts, p)
	}

	if configChanged {
		if err := app.ReloadConfig(); err != nil {
			app.logger.Error("%v", err)
		}
	}
	if len(scripts) > 0 {
		if err := app.reloadScripts(scripts); err != nil {
			app.logger.Error("%v", err)
		}
	}
	app.watch()
}

// ReloadConfig re-reads every configuration layer and applies the
// settings that changed. On error the running configuration is kept.
func (app *Application) ReloadConfig() error {
	cfg, diff, err := app.loader.Reload()
	if err != nil {
		return NewComponentError("config", "reload", err)
	}
	if diff.Empty() {
		app.logger.Debug("config: unchanged")
		return nil
	}
	app.logger.Info("config: %d added, %d modified, %d removed",
		len(diff.Added), len(diff.Modified), len(diff.Removed))
	app.config = cfg
	return app.apply(cfg, diff)
}

func (app *Application) apply(cfg *config.Config, diff layer.Diff) error {
	if diff.Changed("log.level") {
		app.logger.SetLevel(ParseLogLevel(cfg.Log.Level))
	}
	if diff.Changed("display.refresh_rate") || diff.Changed("display.detect_refresh_rate") {
		app.core.SetRefreshRate(refreshRate(cfg.Display))
	}
	if diff.Changed("display.sync_to_vblank") {
		app.core.SetSyncToVBlank(cfg.Display.SyncToVBlank)
	}
	for _, key := range []string{"display.backend", "display.name"} {
		if diff.Changed(key) {
			app.logger.Warn("config: %s takes effect after a restart", key)
		}
	}

	if diff.Changed("plugins.paths") {
		loader := app.plugins.Loader()
		for _, p := range pluginPaths(cfg.Plugins) {
			if !slices.Contains(loader.Paths(), p) {
				loader.AddPath(p)
			}
		}
		loader.Refresh()
	}

	ctx := context.Background()
	var errs []error
	if diff.Changed("plugin") {
		app.plugins.SetSettings(cfg.Plugin)
		for _, name := range app.plugins.Active() {
			if !diff.Changed("plugin." + name) {
				continue
			}
			if err := app.plugins.Reload(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if diff.Changed("plugins.active") {
		if err := app.plugins.SetActive(ctx, cfg.Plugins.Active); err != nil {
			errs = append(errs, err)
		}
	}
	if diff.Changed("plugins.hot_reload") {
		if err := app.setHotReload(cfg.Plugins.HotReload); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("config", errs)
}

// reloadScripts reloads the active script plugins whose files are among
// paths, then retries configured plugins that are not active yet.
func (app *Application) reloadScripts(paths []string) error {
	ctx := context.Background()
	search := app.plugins.Loader().Paths()

	var errs []error
	for _, name := range app.plugins.Active() {
		host, ok := app.plugins.Get(name)
		if !ok || host.Builtin() {
			continue
		}
		if !slices.ContainsFunc(paths, func(p string) bool { return affects(host.Manifest(), search, p) }) {
			continue
		}
		app.logger.Info("plugin %s changed on disk", name)
		if err := app.plugins.Reload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}

	var missing []string
	for _, name := range app.config.Plugins.Active {
		if !app.plugins.IsActive(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		app.plugins.Loader().Refresh()
		if err := app.plugins.Activate(ctx, missing...); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("plugins", errs)
}

// affects reports whether a change to path concerns the plugin described
// by mf. Files directly in a search path only concern their own
// single-file plugin.
func affects(mf *plugin.Manifest, search []string, path string) bool {
	if samePath(mf.MainPath(), path) {
		return true
	}
	dir := mf.Path()
	if dir == "" || slices.ContainsFunc(search, func(s string) bool { return samePath(s, dir) }) {
		return false
	}
	rel, err := filepath.Rel(abs(dir), abs(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// setHotReload starts or stops watching files.
func (app *Application) setHotReload(on bool) error {
	switch {
	case on && app.watcher == nil:
		return app.startWatcher()
	case !on && app.watcher != nil:
		err := app.watcher.Close()
		app.watcher = nil
		return err
	}
	return nil
}

// watch points the watcher at the current configuration files and plugin
// directories.
func (app *Application) watch() {
	w := app.watcher
	if w == nil {
		return
	}
	w.Reset()
	for _, f := range append([]string{app.loader.Path()}, app.loader.Files()...) {
		if err := w.WatchFile(f); err != nil {
			app.logger.Debug("watcher: %s: %v", f, err)
		}
	}
	for _, dir := range app.plugins.Loader().Watched() {
		if err := w.WatchDir(dir); err != nil {
			app.logger.Debug("watcher: %s: %v", dir, err)
		}
	}
}

func abs(path string) string {
	if a, err := filepath.Abs(path); err == nil {
		return a
	}
	return filepath.Clean(path)
}

func samePath(a, b string) bool {
	return abs(a) == abs(b)
}
