// Package dim is a builtin plugin that fades unfocused windows to a lower
// opacity and back when they gain focus.
//
// The current opacity of each window lives in a window private slot and is
// applied by a PaintWindow interception. An animation timer runs only while
// some window is still moving towards its target; display events restart it.
package dim

import (
	"time"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/plugin"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// Name is the name the plugin registers under.
const Name = "dim"

const (
	// DefaultLevel is the opacity of an unfocused window, about 70%.
	DefaultLevel uint16 = 0xb333

	// DefaultDuration is how long a full fade takes.
	DefaultDuration = 150 * time.Millisecond

	frameInterval = 16 * time.Millisecond
)

func init() {
	plugin.Register(Name, func() *core.PluginVTable {
		return newPlugin(DefaultLevel, DefaultDuration).vtable()
	})
}

// fade lives in each window's private slot.
type fade struct {
	current uint16
}

type dimPlugin struct {
	core     *core.Core
	level    uint16
	duration time.Duration

	windows privates.Key[*fade]
	events  wrap.Handle
	paints  map[*core.Screen]wrap.Handle
	timer   loop.Handle
	last    time.Time
}

func newPlugin(level uint16, duration time.Duration) *dimPlugin {
	return &dimPlugin{
		level:    level,
		duration: max(duration, time.Millisecond),
		paints:   make(map[*core.Screen]wrap.Handle),
	}
}

func (p *dimPlugin) vtable() *core.PluginVTable {
	return &core.PluginVTable{
		Name:        Name,
		ABI:         core.ABIVersion,
		Init:        p.init,
		Fini:        p.fini,
		InitDisplay: p.initDisplay,
		FiniDisplay: p.finiDisplay,
		InitScreen:  p.initScreen,
		FiniScreen:  p.finiScreen,
		InitWindow:  p.initWindow,
		FiniWindow:  p.finiWindow,
	}
}

func (p *dimPlugin) init(c *core.Core) error {
	k, err := core.NewKey[*fade](c, privates.KindWindow)
	if err != nil {
		return err
	}
	p.core = c
	p.windows = k
	return nil
}

func (p *dimPlugin) fini(c *core.Core) {
	p.stop()
	_ = core.ReleaseKey(c, &p.windows)
}

func (p *dimPlugin) initDisplay(d *core.Display) error {
	p.events = d.Hooks.HandleEvent.Install(Name, func(ev core.Event, next wrap.Next[core.Event, core.Void]) core.Void {
		r := next(ev)
		switch ev.Type {
		case core.EventFocus, core.EventMapWindow, core.EventCreateWindow, core.EventDestroyWindow:
			p.kick()
		}
		return r
	})
	return nil
}

func (p *dimPlugin) finiDisplay(d *core.Display) {
	_ = d.Hooks.HandleEvent.Remove(p.events)
}

func (p *dimPlugin) initScreen(s *core.Screen) error {
	p.paints[s] = s.Hooks.PaintWindow.Install(Name, p.paintWindow)
	return nil
}

func (p *dimPlugin) finiScreen(s *core.Screen) {
	if h, ok := p.paints[s]; ok {
		_ = s.Hooks.PaintWindow.Remove(h)
		delete(p.paints, s)
	}
}

// initWindow starts every window fully opaque so it fades down if it is
// not focused.
func (p *dimPlugin) initWindow(w *core.Window) error {
	if err := p.windows.Set(w, &fade{current: core.OpaqueValue}); err != nil {
		return err
	}
	p.kick()
	return nil
}

func (p *dimPlugin) finiWindow(w *core.Window) {
	if f, ok := p.windows.Get(w); ok && f.current != core.OpaqueValue {
		w.Damage()
	}
	p.windows.Delete(w)
}

func (p *dimPlugin) paintWindow(a core.PaintWindowArgs, next wrap.Next[core.PaintWindowArgs, bool]) bool {
	if f, ok := p.windows.Get(a.Window); ok && f.current != core.OpaqueValue {
		a.Attrib.Opacity = scale(a.Attrib.Opacity, f.current)
	}
	return next(a)
}

// target is the opacity w is fading towards.
func (p *dimPlugin) target(w *core.Window) uint16 {
	if w.Focused() || w.OverrideRedirect() {
		return core.OpaqueValue
	}
	return p.level
}

// kick starts the animation timer unless it is already running.
func (p *dimPlugin) kick() {
	if p.timer != 0 || p.core == nil {
		return
	}
	h, err := p.core.Scheduler().AddTimeout(frameInterval, frameInterval+frameInterval/2, p.animate, nil)
	if err != nil {
		p.core.Logger().Warn("dim: %v", err)
		return
	}
	p.timer = h
	p.last = p.core.Clock().Now()
}

func (p *dimPlugin) stop() {
	if p.timer != 0 {
		p.core.Scheduler().RemoveTimeout(p.timer)
		p.timer = 0
	}
}

// animate steps every window towards its target and damages the ones that
// changed. It keeps the timer only while something is still moving.
func (p *dimPlugin) animate(any) bool {
	now := p.core.Clock().Now()
	elapsed := now.Sub(p.last)
	p.last = now
	step := max(int(float64(core.OpaqueValue)*elapsed.Seconds()/p.duration.Seconds()), 1)

	moving := false
	for _, s := range p.core.Display().Screens() {
		for _, w := range s.Windows() {
			f, ok := p.windows.Get(w)
			if !ok {
				continue
			}
			t := p.target(w)
			if f.current == t {
				continue
			}
			f.current = approach(f.current, t, step)
			w.Damage()
			if f.current != t {
				moving = true
			}
		}
	}
	if !moving {
		p.timer = 0
	}
	return moving
}

// opacity returns the current faded opacity of w.
func (p *dimPlugin) opacity(w *core.Window) (uint16, bool) {
	f, ok := p.windows.Get(w)
	if !ok {
		return 0, false
	}
	return f.current, true
}

func approach(cur, target uint16, step int) uint16 {
	c, t := int(cur), int(target)
	switch {
	case c < t:
		return uint16(min(c+step, t))
	case c > t:
		return uint16(max(c-step, t))
	}
	return cur
}

func scale(v, by uint16) uint16 {
	return uint16(uint32(v) * uint32(by) / uint32(core.OpaqueValue))
}
