package core

import (
	"errors"
	"fmt"

	"github.com/dshills/stormwm/internal/wrap"
)

// safeInit runs an init hook, turning a panic into an error.
func safeInit(plugin, hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pluginErr(plugin, hook, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		return pluginErr(plugin, hook, err)
	}
	return nil
}

// safeFini runs a fini hook, logging a panic instead of propagating it.
func (c *Core) safeFini(plugin, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("plugin %s: %s panicked: %v", plugin, hook, r)
		}
	}()
	fn()
}

// ActivatePlugin checks vt's ABI and runs its init hooks over every existing
// object: the plugin itself, then the core, the display, and each screen
// followed by that screen's windows. If any hook fails, everything already
// initialized is finalized again in reverse order, the plugin's
// interceptions are removed, and the error is returned.
func (c *Core) ActivatePlugin(vt *PluginVTable) error {
	if vt == nil || vt.Name == "" {
		return errors.New("core: plugin has no name")
	}
	if vt.ABI != ABIVersion {
		return pluginErr(vt.Name, "load", fmt.Errorf("%w: plugin %d, core %d", ErrABIMismatch, vt.ABI, ABIVersion))
	}
	if c.pluginIndex(vt.Name) >= 0 {
		return pluginErr(vt.Name, "load", ErrPluginActive)
	}

	u := wrap.NewUnwinder()
	defer u.Unwind()

	// Registered first so it runs after every fini hook.
	u.Defer(func() { c.removeInterceptions(vt.Name) })

	step := func(hook string, init func() error, fini func()) error {
		if err := safeInit(vt.Name, hook, init); err != nil {
			return err
		}
		if fini != nil {
			u.Defer(func() { c.safeFini(vt.Name, hook, fini) })
		}
		return nil
	}

	if vt.Init != nil {
		if err := step("init", func() error { return vt.Init(c) }, finiOrNil(vt.Fini, c)); err != nil {
			return err
		}
	}
	if vt.InitCore != nil {
		if err := step("init core", func() error { return vt.InitCore(c) }, finiOrNil(vt.FiniCore, c)); err != nil {
			return err
		}
	}
	d := c.display
	if vt.InitDisplay != nil {
		if err := step("init display", func() error { return vt.InitDisplay(d) }, finiOrNil(vt.FiniDisplay, d)); err != nil {
			return err
		}
	}
	for _, s := range d.screens {
		if vt.InitScreen != nil {
			if err := step("init screen", func() error { return vt.InitScreen(s) }, finiOrNil(vt.FiniScreen, s)); err != nil {
				return err
			}
		}
		if vt.InitWindow == nil {
			continue
		}
		for _, w := range s.windows {
			if err := step("init window", func() error { return vt.InitWindow(w) }, finiOrNil(vt.FiniWindow, w)); err != nil {
				return err
			}
		}
	}

	c.plugins = append(c.plugins, vt)
	u.Commit()
	c.logger.Info("plugin %s active", vt.Name)
	return nil
}

func finiOrNil[T any](fini func(T), obj T) func() {
	if fini == nil {
		return nil
	}
	return func() { fini(obj) }
}

// DeactivatePlugin runs the plugin's fini hooks over every object in the
// reverse of activation order and removes any interception it left
// installed.
func (c *Core) DeactivatePlugin(name string) error {
	i := c.pluginIndex(name)
	if i < 0 {
		return pluginErr(name, "unload", ErrPluginNotActive)
	}
	vt := c.plugins[i]
	c.plugins = append(c.plugins[:i:i], c.plugins[i+1:]...)

	d := c.display
	for si := len(d.screens) - 1; si >= 0; si-- {
		s := d.screens[si]
		if vt.FiniWindow != nil {
			for wi := len(s.windows) - 1; wi >= 0; wi-- {
				w := s.windows[wi]
				c.safeFini(name, "fini window", func() { vt.FiniWindow(w) })
			}
		}
		if vt.FiniScreen != nil {
			c.safeFini(name, "fini screen", func() { vt.FiniScreen(s) })
		}
	}
	if vt.FiniDisplay != nil {
		c.safeFini(name, "fini display", func() { vt.FiniDisplay(d) })
	}
	if vt.FiniCore != nil {
		c.safeFini(name, "fini core", func() { vt.FiniCore(c) })
	}
	if vt.Fini != nil {
		c.safeFini(name, "fini", func() { vt.Fini(c) })
	}

	if n := c.removeInterceptions(name); n > 0 {
		c.logger.Warn("plugin %s left %d interception(s) installed", name, n)
	}
	c.logger.Info("plugin %s inactive", name)
	return nil
}

// Plugins returns the active plugin names in activation order.
func (c *Core) Plugins() []string {
	names := make([]string, len(c.plugins))
	for i, vt := range c.plugins {
		names[i] = vt.Name
	}
	return names
}

// PluginActive reports whether name is active.
func (c *Core) PluginActive(name string) bool {
	return c.pluginIndex(name) >= 0
}

func (c *Core) pluginIndex(name string) int {
	for i, vt := range c.plugins {
		if vt.Name == name {
			return i
		}
	}
	return -1
}

// removeInterceptions removes every link owner installed on any object.
func (c *Core) removeInterceptions(owner string) int {
	n := c.set.RemoveOwner(owner)
	d := c.display
	if d == nil {
		return n
	}
	n += d.set.RemoveOwner(owner)
	for _, s := range d.screens {
		n += s.set.RemoveOwner(owner)
		for _, w := range s.windows {
			n += w.set.RemoveOwner(owner)
		}
	}
	return n
}

// initScreenPlugins runs InitScreen of every active plugin on a new screen.
func (c *Core) initScreenPlugins(s *Screen) error {
	for i, vt := range c.plugins {
		if vt.InitScreen == nil {
			continue
		}
		if err := safeInit(vt.Name, "init screen", func() error { return vt.InitScreen(s) }); err != nil {
			for j := i - 1; j >= 0; j-- {
				if prev := c.plugins[j]; prev.FiniScreen != nil {
					c.safeFini(prev.Name, "fini screen", func() { prev.FiniScreen(s) })
				}
			}
			return err
		}
	}
	return nil
}

// initWindowPlugins runs InitWindow of every active plugin on a new window.
// On failure the plugins already initialized are finalized again and the
// window is not managed.
func (c *Core) initWindowPlugins(w *Window) error {
	for i, vt := range c.plugins {
		if vt.InitWindow == nil {
			continue
		}
		if err := safeInit(vt.Name, "init window", func() error { return vt.InitWindow(w) }); err != nil {
			for j := i - 1; j >= 0; j-- {
				if prev := c.plugins[j]; prev.FiniWindow != nil {
					c.safeFini(prev.Name, "fini window", func() { prev.FiniWindow(w) })
				}
			}
			return err
		}
	}
	return nil
}

// finiWindowPlugins runs FiniWindow of every active plugin, newest first.
func (c *Core) finiWindowPlugins(w *Window) {
	for i := len(c.plugins) - 1; i >= 0; i-- {
		vt := c.plugins[i]
		if vt.FiniWindow != nil {
			c.safeFini(vt.Name, "fini window", func() { vt.FiniWindow(w) })
		}
	}
}
