package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/stormwm/internal/config"
	"github.com/dshills/stormwm/internal/config/watcher"
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/plugin"

	// Backends and builtin plugins register themselves.
	_ "github.com/dshills/stormwm/internal/backend/headless"
	_ "github.com/dshills/stormwm/internal/backend/term"
	_ "github.com/dshills/stormwm/internal/backend/x11"
	_ "github.com/dshills/stormwm/internal/plugins/dim"
	_ "github.com/dshills/stormwm/internal/plugins/fps"
)

// DefaultReloadDelay is how long file changes settle before a hot reload.
const DefaultReloadDelay = 200 * time.Millisecond

// Application owns the core and everything around it. Apart from
// RequestDump and Quit, its methods must be called on the loop goroutine:
// the one running Run, or any single goroutine while Run is not active.
type Application struct {
	mu sync.Mutex

	opts    Options
	session uuid.UUID

	logger  *Logger
	loader  *config.Loader
	config  *config.Config
	backend core.Backend
	core    *core.Core
	plugins *plugin.Manager
	metrics *Metrics

	watcher *watcher.Watcher
	reload  loop.Handle
	changed map[string]bool

	running atomic.Bool
	closed  bool
}

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses config.DefaultPath.
	ConfigPath string

	// Overrides set dotted configuration paths, as given on the command
	// line. They win over every other source.
	Overrides map[string]any

	// Environ replaces the process environment for STORMWM_* lookups.
	Environ []string

	// Backend is used instead of opening display.backend.
	Backend core.Backend

	// Clock and Poller replace the loop's time source and poller.
	Clock  loop.Clock
	Poller loop.Poller

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// ReloadDelay debounces hot reload. Zero uses DefaultReloadDelay.
	ReloadDelay time.Duration

	// HandleSignals writes a state dump on SIGUSR1 while running.
	HandleSignals bool
}

// New loads the configuration, opens the display and activates the
// configured plugins.
func New(opts Options) (*Application, error) {
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = DefaultReloadDelay
	}
	app := &Application{
		opts:    opts,
		session: uuid.New(),
		changed: make(map[string]bool),
	}
	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Run iterates the event loop until ctx is done or Quit is called.
func (app *Application) Run(ctx context.Context) error {
	if app.isClosed() {
		return ErrClosed
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	if app.opts.HandleSignals {
		stop := app.handleSignals()
		defer stop()
	}

	app.logger.Info("session %s running on %s", app.session, app.backend.Name())
	return app.core.Run(ctx)
}

// RunOnce performs a single loop iteration.
func (app *Application) RunOnce() error {
	if app.isClosed() {
		return ErrClosed
	}
	return app.core.RunOnce()
}

// Quit makes Run return. It may be called from any goroutine.
func (app *Application) Quit() {
	if app.core == nil {
		return
	}
	if err := app.core.Notifier().Post(app.core.Quit); err != nil {
		app.logger.Debug("quit: %v", err)
	}
}

// handleSignals forwards SIGUSR1 into the loop as a state dump request.
func (app *Application) handleSignals() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ch:
				app.RequestDump()
			case <-quit:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(quit)
		wg.Wait()
	}
}

// Shutdown deactivates every plugin and releases the display. Call it after
// Run returns; later calls do nothing.
func (app *Application) Shutdown() error {
	app.mu.Lock()
	if app.closed {
		app.mu.Unlock()
		return nil
	}
	app.closed = true
	app.mu.Unlock()

	var errs []error
	if app.watcher != nil {
		errs = append(errs, app.watcher.Close())
	}
	if app.reload != 0 {
		app.core.Scheduler().RemoveTimeout(app.reload)
		app.reload = 0
	}
	app.metrics.Detach()
	errs = append(errs, app.plugins.Close(), app.core.Close())

	app.logger.Info("session %s ended", app.session)
	return joinErrors("shutdown", errs)
}

func (app *Application) isClosed() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.closed
}

// IsRunning reports whether Run is active.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Session returns the id of this run.
func (app *Application) Session() uuid.UUID { return app.session }

// Logger returns the application logger.
func (app *Application) Logger() *Logger { return app.logger }

// Config returns the configuration currently applied.
func (app *Application) Config() *config.Config { return app.config }

// ConfigLoader returns the configuration loader.
func (app *Application) ConfigLoader() *config.Loader { return app.loader }

// Core returns the window manager core.
func (app *Application) Core() *core.Core { return app.core }

// Plugins returns the plugin manager.
func (app *Application) Plugins() *plugin.Manager { return app.plugins }

// Metrics returns the frame metrics.
func (app *Application) Metrics() *Metrics { return app.metrics }

// Watcher returns the hot reload watcher, or nil when hot reload is off.
func (app *Application) Watcher() *watcher.Watcher { return app.watcher }
