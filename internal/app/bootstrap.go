package app

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/dshills/stormwm/internal/backend"
	"github.com/dshills/stormwm/internal/config"
	"github.com/dshills/stormwm/internal/config/watcher"
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/plugin"
	"github.com/dshills/stormwm/internal/redraw"
)

// bootstrapper initializes components in dependency order and tears down
// the ones already started when a later step fails.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      app.opts,
		initOrder: make([]string, 0, 6),
	}
}

func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		name string
		init func() error
	}{
		{"config", b.initConfig},
		{"logger", b.initLogger},
		{"backend", b.initBackend},
		{"core", b.initCore},
		{"metrics", b.initMetrics},
		{"plugins", b.initPlugins},
		{"watcher", b.initWatcher},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) initConfig() error {
	var opts []config.Option
	if b.opts.ConfigPath != "" {
		opts = append(opts, config.WithPath(b.opts.ConfigPath))
	}
	if b.opts.Environ != nil {
		opts = append(opts, config.WithEnviron(b.opts.Environ))
	}
	for _, path := range slices.Sorted(maps.Keys(b.opts.Overrides)) {
		opts = append(opts, config.WithOverride(path, b.opts.Overrides[path]))
	}

	loader := config.NewLoader(opts...)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	b.app.loader = loader
	b.app.config = cfg
	return nil
}

func (b *bootstrapper) initLogger() error {
	lc := DefaultLoggerConfig()
	lc.Level = ParseLogLevel(b.app.config.Log.Level)
	if b.opts.LogOutput != nil {
		lc.Output = b.opts.LogOutput
	}
	b.app.logger = NewLogger(lc)
	SetLogger(b.app.logger)
	if files := b.app.loader.Files(); len(files) > 0 {
		b.app.logger.Info("configuration from %v", files)
	}
	return nil
}

func (b *bootstrapper) initBackend() error {
	if b.opts.Backend != nil {
		b.app.backend = b.opts.Backend
		return nil
	}
	d := b.app.config.Display
	be, err := backend.Open(d.Backend, d.Name, backend.Options{
		RefreshRate: d.RefreshRate,
		Logger:      b.app.logger.WithComponent(d.Backend),
		Quit:        b.app.Quit,
	})
	if err != nil {
		return err
	}
	b.app.backend = be
	return nil
}

func (b *bootstrapper) initCore() error {
	d := b.app.config.Display
	opts := []core.Option{
		core.WithLogger(b.app.logger.WithComponent("core")),
		core.WithRefreshRate(refreshRate(d)),
		core.WithSyncToVBlank(d.SyncToVBlank),
	}
	if b.opts.Clock != nil {
		opts = append(opts, core.WithClock(b.opts.Clock))
	}
	if b.opts.Poller != nil {
		opts = append(opts, core.WithPoller(b.opts.Poller))
	}
	c, err := core.New(b.app.backend, opts...)
	if err != nil {
		return err
	}
	b.app.core = c
	return nil
}

func (b *bootstrapper) initMetrics() error {
	b.app.metrics = NewMetrics()
	b.app.metrics.Attach(b.app.core)
	return nil
}

func (b *bootstrapper) initPlugins() error {
	p := b.app.config.Plugins
	b.app.plugins = plugin.NewManager(b.app.core, plugin.ManagerConfig{
		PluginPaths:      pluginPaths(p),
		ExecutionTimeout: time.Duration(p.Timeout) * time.Millisecond,
		Settings:         b.app.config.Plugin,
		Logger:           b.app.logger.WithComponent("plugins"),
	})

	// A plugin that fails to start is reported, not fatal.
	if err := b.app.plugins.Activate(context.Background(), p.Active...); err != nil {
		b.app.logger.Error("activating plugins: %v", err)
	}
	return nil
}

func (b *bootstrapper) initWatcher() error {
	if !b.app.config.Plugins.HotReload {
		return nil
	}
	return b.app.startWatcher()
}

// cleanup releases started components, newest first.
func (b *bootstrapper) cleanup() {
	for _, component := range slices.Backward(b.initOrder) {
		b.cleanupComponent(component)
	}
}

func (b *bootstrapper) cleanupComponent(component string) {
	switch component {
	case "backend":
		// The core owns the backend once it exists.
		if b.app.core == nil && b.app.backend != nil {
			_ = b.app.backend.Close()
		}
	case "core":
		_ = b.app.core.Close()
	case "metrics":
		b.app.metrics.Detach()
	case "plugins":
		_ = b.app.plugins.Close()
	case "watcher":
		if b.app.watcher != nil {
			_ = b.app.watcher.Close()
		}
	}
}

// startWatcher begins watching the configuration files and plugin
// directories.
func (app *Application) startWatcher() error {
	w, err := watcher.New(app.fileChanged, watcher.WithErrorHandler(func(err error) {
		app.logger.Warn("watcher: %v", err)
	}))
	if err != nil {
		return err
	}
	app.watcher = w
	app.watch()
	return nil
}

// refreshRate is the rate pinned on every screen, or zero to use what the
// backend reports.
func refreshRate(d config.DisplayConfig) int {
	if d.RefreshRate > 0 || d.DetectRefreshRate {
		return d.RefreshRate
	}
	return redraw.DefaultRefreshRate
}

func pluginPaths(p config.PluginsConfig) []string {
	if len(p.Paths) == 0 {
		return plugin.DefaultPluginPaths()
	}
	return slices.Clone(p.Paths)
}
