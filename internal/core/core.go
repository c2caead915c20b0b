package core

import (
	"errors"
	"fmt"

	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// Core is the root of the object graph. Exactly one exists per process; it
// is created by New and passed to everything that needs it.
type Core struct {
	cells privates.Cells
	Hooks CoreHooks
	set   *wrap.Set

	allocators [privates.NumKinds]*privates.Allocator

	sched    *loop.Scheduler
	notifier *loop.Notifier
	clock    loop.Clock
	poller   loop.Poller
	logger   Logger

	display *Display
	plugins []*PluginVTable

	refreshRate      int
	syncToVBlank     bool
	damageThreshold  float64
	running          bool
	quit             bool
	closed           bool
	iterations       uint64
	objectsCreated   uint64
	objectsDestroyed uint64
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Core) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source for timers and frame pacing.
func WithClock(clock loop.Clock) Option {
	return func(c *Core) { c.clock = clock }
}

// WithPoller sets the descriptor poller used by the scheduler.
func WithPoller(p loop.Poller) Option {
	return func(c *Core) { c.poller = p }
}

// WithRefreshRate pins the refresh rate of every screen. Zero uses the rate
// the backend reports.
func WithRefreshRate(hz int) Option {
	return func(c *Core) { c.refreshRate = hz }
}

// WithSyncToVBlank paces frames by vertical sync where the backend
// supports it.
func WithSyncToVBlank(on bool) Option {
	return func(c *Core) { c.syncToVBlank = on }
}

// WithDamageThreshold sets the fraction of a screen above which damage is
// treated as full-screen damage.
func WithDamageThreshold(f float64) Option {
	return func(c *Core) { c.damageThreshold = f }
}

// New builds the object graph for backend and starts event delivery.
func New(backend Backend, opts ...Option) (*Core, error) {
	if backend == nil {
		return nil, errors.New("core: nil backend")
	}

	c := &Core{
		logger: nopLogger{},
		clock:  loop.SystemClock{},
		poller: loop.UnixPoller{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Hooks, c.set = newCoreHooks()
	c.allocators[privates.KindCore] = privates.NewAllocator(privates.KindCore, c.backing(privates.KindCore))
	c.allocators[privates.KindDisplay] = privates.NewAllocator(privates.KindDisplay, c.backing(privates.KindDisplay))
	c.allocators[privates.KindScreen] = privates.NewAllocator(privates.KindScreen, c.backing(privates.KindScreen))
	c.allocators[privates.KindWindow] = privates.NewAllocator(privates.KindWindow, c.backing(privates.KindWindow))

	c.sched = loop.NewScheduler(
		loop.WithClock(c.clock),
		loop.WithPoller(c.poller),
		loop.WithLogger(c.logger),
	)
	n, err := loop.NewNotifier(c.sched)
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	c.notifier = n

	infos, err := backend.Screens()
	if err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("core: %s screens: %w", backend.Name(), err)
	}
	if len(infos) == 0 {
		_ = n.Close()
		return nil, fmt.Errorf("core: %s: %w", backend.Name(), ErrNoScreens)
	}

	c.display = newDisplay(c, backend)
	c.objectAdded(c, c.display)
	for i, info := range infos {
		c.display.addScreen(i, info)
	}

	if err := backend.Start(c.display.sink); err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("core: start %s: %w", backend.Name(), err)
	}

	c.logger.Info("managing %d screen(s) on %s", len(infos), backend.Name())
	return c, nil
}

// Close deactivates every plugin, newest first, and releases the backend.
func (c *Core) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for i := len(c.plugins) - 1; i >= 0; i-- {
		if err := c.DeactivatePlugin(c.plugins[i].Name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.display.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", c.display.backend.Name(), err))
	}
	if err := c.notifier.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Kind implements Object.
func (c *Core) Kind() privates.Kind { return privates.KindCore }

// Privates implements privates.Holder.
func (c *Core) Privates() *privates.Cells { return &c.cells }

// Interceptions implements Object.
func (c *Core) Interceptions() *wrap.Set { return c.set }

func (c *Core) String() string { return "core" }

// Display returns the display.
func (c *Core) Display() *Display { return c.display }

// Scheduler returns the timer and descriptor scheduler.
func (c *Core) Scheduler() *loop.Scheduler { return c.sched }

// Notifier returns the channel other goroutines use to reach the loop.
func (c *Core) Notifier() *loop.Notifier { return c.notifier }

// Clock returns the time source.
func (c *Core) Clock() loop.Clock { return c.clock }

// Logger returns the core's logger.
func (c *Core) Logger() Logger { return c.logger }

// Allocator returns the slot allocator for kind.
func (c *Core) Allocator(kind privates.Kind) *privates.Allocator {
	return c.allocators[kind]
}

// SetRefreshRate pins every screen to hz, or returns them to the rate the
// backend reported when hz is zero.
func (c *Core) SetRefreshRate(hz int) {
	c.refreshRate = hz
	for _, s := range c.display.screens {
		s.applyRefreshRate()
	}
}

// SetSyncToVBlank switches vertical sync pacing on every screen.
func (c *Core) SetSyncToVBlank(on bool) {
	c.syncToVBlank = on
	for _, s := range c.display.screens {
		s.pacer.SetVSync(on && s.info.VSync)
	}
}

// ObjectCounts returns how many objects were created and destroyed.
func (c *Core) ObjectCounts() (created, destroyed uint64) {
	return c.objectsCreated, c.objectsDestroyed
}

// Iterations returns how many loop iterations have run.
func (c *Core) Iterations() uint64 {
	return c.iterations
}

// objects returns every live object of kind.
func (c *Core) objects(kind privates.Kind) []privates.Holder {
	switch kind {
	case privates.KindCore:
		return []privates.Holder{c}
	case privates.KindDisplay:
		if c.display == nil {
			return nil
		}
		return []privates.Holder{c.display}
	case privates.KindScreen:
		if c.display == nil {
			return nil
		}
		out := make([]privates.Holder, 0, len(c.display.screens))
		for _, s := range c.display.screens {
			out = append(out, s)
		}
		return out
	case privates.KindWindow:
		if c.display == nil {
			return nil
		}
		var out []privates.Holder
		for _, s := range c.display.screens {
			for _, w := range s.windows {
				out = append(out, w)
			}
		}
		return out
	}
	return nil
}

func (c *Core) backing(kind privates.Kind) privates.Backing {
	return privates.BackingFuncs{
		GrowFunc: func(size int) error {
			for _, o := range c.objects(kind) {
				if err := o.Privates().Grow(size); err != nil {
					return err
				}
			}
			return nil
		},
		ResetFunc: func(index privates.Index) {
			for _, o := range c.objects(kind) {
				o.Privates().Clear(index)
			}
		},
	}
}

// sizeCells gives a new object of kind room for every allocated index.
func (c *Core) sizeCells(o privates.Holder, kind privates.Kind) {
	// Len never exceeds MaxCells: the allocator only grows through the
	// backing, which enforces it.
	_ = o.Privates().Grow(c.allocators[kind].Len())
}

func (c *Core) objectAdded(parent, obj Object) {
	c.objectsCreated++
	c.Hooks.ObjectAdd.Call(ObjectArgs{Parent: parent, Object: obj})
}

func (c *Core) objectRemoved(parent, obj Object) {
	c.objectsDestroyed++
	c.Hooks.ObjectRemove.Call(ObjectArgs{Parent: parent, Object: obj})
}

// NewKey allocates a private slot on every object of kind.
func NewKey[T any](c *Core, kind privates.Kind) (privates.Key[T], error) {
	return privates.NewKey[T](c.allocators[kind])
}

// ReleaseKey clears k on every live object of its kind and frees the slot.
func ReleaseKey[T any](c *Core, k *privates.Key[T]) error {
	if !k.Valid() {
		return privates.ErrInvalidKey
	}
	for _, o := range c.objects(k.Kind()) {
		k.Delete(o)
	}
	return k.Release(c.allocators[k.Kind()])
}
