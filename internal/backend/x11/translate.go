package x11

import (
	"github.com/jezek/xgb"
	xdamage "github.com/jezek/xgb/damage"
	"github.com/jezek/xgb/xproto"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// server is what the translator asks of the X connection.
type server interface {
	MapWindow(w xproto.Window)
	ConfigureWindow(w xproto.Window, mask uint16, values []uint32)
	Track(w xproto.Window)
	Opacity(w xproto.Window, atom xproto.Atom) uint32
	Invalidate(w xproto.Window, gone bool)
}

// translator turns X events into core events. It runs on the connection's
// reader goroutine.
type translator struct {
	srv     server
	sink    core.EventSink
	roots   map[xproto.Window]int
	opacity xproto.Atom

	// screens maps each top-level window to its screen.
	screens map[xproto.Window]int
}

func newTranslator(srv server, sink core.EventSink, roots map[xproto.Window]int, opacity xproto.Atom) *translator {
	return &translator{
		srv:     srv,
		sink:    sink,
		roots:   roots,
		opacity: opacity,
		screens: make(map[xproto.Window]int),
	}
}

func (t *translator) add(screen int, w xproto.Window, r damage.Rect, override bool) {
	t.screens[w] = screen
	t.srv.Track(w)
	t.sink(core.Event{
		Type:             core.EventCreateWindow,
		Screen:           screen,
		Window:           core.WindowID(w),
		Rect:             r,
		OverrideRedirect: override,
	})
	if v := t.srv.Opacity(w, t.opacity); v != 0xffffffff {
		t.sink(core.Event{Type: core.EventProperty, Window: core.WindowID(w), Name: core.PropertyOpacity, Detail: v})
	}
}

// existing reports a window found at startup.
func (t *translator) existing(screen int, w xproto.Window, r damage.Rect, override, viewable bool) {
	t.add(screen, w, r, override)
	if viewable {
		t.sink(core.Event{Type: core.EventMapWindow, Window: core.WindowID(w)})
	}
}

func (t *translator) protocolError(err xgb.Error) {
	t.sink(core.Event{
		Type:   core.EventError,
		Window: core.WindowID(err.BadId()),
		Detail: uint32(err.SequenceId()),
	})
}

func (t *translator) managed(w xproto.Window) bool {
	_, ok := t.screens[w]
	return ok
}

func (t *translator) translate(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.CreateNotifyEvent:
		screen, ok := t.roots[e.Parent]
		if !ok || t.managed(e.Window) {
			return
		}
		t.add(screen, e.Window, frameRect(e.X, e.Y, e.Width, e.Height, e.BorderWidth), e.OverrideRedirect)

	case xproto.DestroyNotifyEvent:
		if !t.managed(e.Window) {
			return
		}
		delete(t.screens, e.Window)
		t.srv.Invalidate(e.Window, true)
		t.sink(core.Event{Type: core.EventDestroyWindow, Window: core.WindowID(e.Window)})

	case xproto.MapRequestEvent:
		t.srv.MapWindow(e.Window)

	case xproto.ConfigureRequestEvent:
		mask, values := configureValues(e)
		t.srv.ConfigureWindow(e.Window, mask, values)

	case xproto.MapNotifyEvent:
		if !t.managed(e.Window) {
			return
		}
		t.srv.Invalidate(e.Window, false)
		t.sink(core.Event{Type: core.EventMapWindow, Window: core.WindowID(e.Window)})

	case xproto.UnmapNotifyEvent:
		if !t.managed(e.Window) {
			return
		}
		t.sink(core.Event{Type: core.EventUnmapWindow, Window: core.WindowID(e.Window)})

	case xproto.ConfigureNotifyEvent:
		if screen, ok := t.roots[e.Window]; ok {
			r := damage.Rect{Width: int(e.Width), Height: int(e.Height)}
			t.sink(core.Event{Type: core.EventOutputChange, Screen: screen, Rect: r})
			return
		}
		if !t.managed(e.Window) {
			return
		}
		t.srv.Invalidate(e.Window, false)
		t.sink(core.Event{
			Type:             core.EventConfigureWindow,
			Window:           core.WindowID(e.Window),
			Rect:             frameRect(e.X, e.Y, e.Width, e.Height, e.BorderWidth),
			Restack:          true,
			Above:            core.WindowID(e.AboveSibling),
			OverrideRedirect: e.OverrideRedirect,
		})

	case xdamage.NotifyEvent:
		w := xproto.Window(e.Drawable)
		if !t.managed(w) {
			return
		}
		t.sink(core.Event{
			Type:   core.EventDamage,
			Window: core.WindowID(w),
			Rect: damage.Rect{
				X:      int(e.Area.X),
				Y:      int(e.Area.Y),
				Width:  int(e.Area.Width),
				Height: int(e.Area.Height),
			},
		})

	case xproto.FocusInEvent:
		if e.Mode != xproto.NotifyModeNormal || !t.managed(e.Event) {
			return
		}
		t.sink(core.Event{Type: core.EventFocus, Window: core.WindowID(e.Event)})

	case xproto.PropertyNotifyEvent:
		if e.Atom != t.opacity || !t.managed(e.Window) {
			return
		}
		v := uint32(0xffffffff)
		if e.State != xproto.PropertyDelete {
			v = t.srv.Opacity(e.Window, t.opacity)
		}
		t.sink(core.Event{Type: core.EventProperty, Window: core.WindowID(e.Window), Name: core.PropertyOpacity, Detail: v})
	}
}

// configureValues builds the ConfigureWindow request granting a client's
// configure request unchanged.
func configureValues(e xproto.ConfigureRequestEvent) (uint16, []uint32) {
	var values []uint32
	m := e.ValueMask
	if m&xproto.ConfigWindowX != 0 {
		values = append(values, uint32(int32(e.X)))
	}
	if m&xproto.ConfigWindowY != 0 {
		values = append(values, uint32(int32(e.Y)))
	}
	if m&xproto.ConfigWindowWidth != 0 {
		values = append(values, uint32(e.Width))
	}
	if m&xproto.ConfigWindowHeight != 0 {
		values = append(values, uint32(e.Height))
	}
	if m&xproto.ConfigWindowBorderWidth != 0 {
		values = append(values, uint32(e.BorderWidth))
	}
	if m&xproto.ConfigWindowSibling != 0 {
		values = append(values, uint32(e.Sibling))
	}
	if m&xproto.ConfigWindowStackMode != 0 {
		values = append(values, uint32(e.StackMode))
	}
	return m, values
}
