package core

import (
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// Display is the connection to the display server. It owns the screens.
type Display struct {
	core  *Core
	cells privates.Cells
	Hooks DisplayHooks
	set   *wrap.Set

	backend Backend
	screens []*Screen
	windows map[WindowID]*Window
	active  *Window

	// events holds delivered events not yet handled, in arrival order.
	events []Event

	eventCount uint64
	errorCount uint64
}

func newDisplay(c *Core, b Backend) *Display {
	d := &Display{
		core:    c,
		backend: b,
		windows: make(map[WindowID]*Window),
	}
	d.Hooks, d.set = newDisplayHooks(d)
	c.sizeCells(d, privates.KindDisplay)
	return d
}

// Kind implements Object.
func (d *Display) Kind() privates.Kind { return privates.KindDisplay }

// Privates implements privates.Holder.
func (d *Display) Privates() *privates.Cells { return &d.cells }

// Interceptions implements Object.
func (d *Display) Interceptions() *wrap.Set { return d.set }

func (d *Display) String() string { return "display(" + d.backend.Name() + ")" }

// Core returns the owning core.
func (d *Display) Core() *Core { return d.core }

// Backend returns the backend the display runs on.
func (d *Display) Backend() Backend { return d.backend }

// Screens returns the managed screens.
func (d *Display) Screens() []*Screen {
	out := make([]*Screen, len(d.screens))
	copy(out, d.screens)
	return out
}

// Screen returns screen i, or nil.
func (d *Display) Screen(i int) *Screen {
	if i < 0 || i >= len(d.screens) {
		return nil
	}
	return d.screens[i]
}

// FindWindow returns the managed window with id, or nil. Events for windows
// that have already gone away resolve to nil and are ignored.
func (d *Display) FindWindow(id WindowID) *Window {
	return d.windows[id]
}

// ActiveWindow returns the focused window, or nil.
func (d *Display) ActiveWindow() *Window {
	return d.active
}

// ErrorCount returns how many protocol errors the backend reported.
func (d *Display) ErrorCount() uint64 {
	return d.errorCount
}

// EventCount returns how many events were handled.
func (d *Display) EventCount() uint64 {
	return d.eventCount
}

// sink is handed to the backend; it may run on any goroutine.
func (d *Display) sink(ev Event) {
	if err := d.core.notifier.Post(func() { d.events = append(d.events, ev) }); err != nil {
		d.core.logger.Debug("dropping %s: %v", ev.Type, err)
	}
}

// Inject queues ev as if the backend had delivered it. It must be called on
// the loop goroutine.
func (d *Display) Inject(ev Event) {
	d.events = append(d.events, ev)
}

// Pending returns the number of queued events.
func (d *Display) Pending() int {
	return len(d.events)
}

// ProcessEvents handles every queued event in arrival order, including
// events queued by the handlers themselves, and returns how many ran.
func (d *Display) ProcessEvents() int {
	n := 0
	for len(d.events) > 0 {
		ev := d.events[0]
		d.events = d.events[1:]
		d.Hooks.HandleEvent.Call(ev)
		n++
	}
	d.events = nil
	return n
}

// handleEvent is the base of the HandleEvent chain.
func (d *Display) handleEvent(ev Event) Void {
	d.eventCount++
	log := d.core.logger

	if ev.Type == EventError {
		d.errorCount++
		log.Debug("protocol error %d on window %#x", ev.Detail, uint32(ev.Window))
		return Void{}
	}

	switch ev.Type {
	case EventCreateWindow:
		s := d.Screen(ev.Screen)
		if s == nil {
			log.Warn("create %#x: %v %d", uint32(ev.Window), ErrUnknownScreen, ev.Screen)
			return Void{}
		}
		if _, err := s.addWindow(ev); err != nil {
			log.Warn("create %#x: %v", uint32(ev.Window), err)
		}
		return Void{}
	case EventExpose:
		if s := d.Screen(ev.Screen); s != nil {
			s.DamageRegion(ev.Rect)
		}
		return Void{}
	case EventOutputChange:
		if s := d.Screen(ev.Screen); s != nil {
			s.changeOutputs(ev.Outputs, ev.Rect)
		}
		return Void{}
	case EventKey, EventButton, EventNone:
		return Void{}
	}

	w := d.FindWindow(ev.Window)
	if w == nil {
		// The window is already gone; the event is stale.
		return Void{}
	}

	switch ev.Type {
	case EventDestroyWindow:
		w.screen.removeWindow(w)
	case EventMapWindow:
		w.setMapped(true)
	case EventUnmapWindow:
		w.setMapped(false)
	case EventConfigureWindow:
		w.configure(ev.Rect)
		if ev.Restack {
			w.screen.restack(w, ev.Above)
		}
	case EventDamage:
		w.DamageRect(ev.Rect, false)
	case EventFocus:
		d.setActive(w)
	case EventGrab:
		w.grabbed = true
		w.screen.Hooks.WindowGrabNotify.Call(WindowGrabArgs{
			Window: w, X: ev.X, Y: ev.Y, State: ev.State, Mask: ev.Detail,
		})
	case EventUngrab:
		w.grabbed = false
		w.screen.Hooks.WindowUngrabNotify.Call(w)
	case EventProperty:
		w.propertyChanged(ev.Name, ev.Detail)
	}
	return Void{}
}

func (d *Display) setActive(w *Window) {
	if d.active == w {
		return
	}
	if prev := d.active; prev != nil {
		prev.focused = false
		prev.Damage()
	}
	d.active = w
	if w != nil {
		w.focused = true
		w.Damage()
	}
}

func (d *Display) addScreen(index int, info ScreenInfo) *Screen {
	s := newScreen(d, index, info)
	d.screens = append(d.screens, s)
	d.core.objectAdded(d, s)
	if err := d.core.initScreenPlugins(s); err != nil {
		d.core.logger.Error("screen %d: %v", index, err)
	}
	s.DamageScreen()
	s.pacer.Force()
	return s
}
