package core

import (
	"fmt"

	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// Property names understood by the core.
const (
	PropertyOpacity    = "opacity"
	PropertyBrightness = "brightness"
	PropertySaturation = "saturation"
)

// Window is one top-level client window.
type Window struct {
	screen *Screen
	cells  privates.Cells
	set    *wrap.Set

	id       WindowID
	rect     damage.Rect
	override bool

	opacity    uint16
	brightness uint16
	saturation uint16

	mapped    bool
	focused   bool
	grabbed   bool
	destroyed bool
}

func newWindow(s *Screen, ev Event) *Window {
	w := &Window{
		screen:     s,
		set:        wrap.NewSet(),
		id:         ev.Window,
		rect:       ev.Rect,
		override:   ev.OverrideRedirect,
		opacity:    OpaqueValue,
		brightness: OpaqueValue,
		saturation: OpaqueValue,
	}
	s.display.core.sizeCells(w, privates.KindWindow)
	return w
}

// Kind implements Object.
func (w *Window) Kind() privates.Kind { return privates.KindWindow }

// Privates implements privates.Holder.
func (w *Window) Privates() *privates.Cells { return &w.cells }

// Interceptions implements Object. Window operations are wrapped on the
// screen, so the set is empty.
func (w *Window) Interceptions() *wrap.Set { return w.set }

func (w *Window) String() string { return fmt.Sprintf("window %#x", uint32(w.id)) }

// ID returns the backend's window id.
func (w *Window) ID() WindowID { return w.id }

// Screen returns the owning screen.
func (w *Window) Screen() *Screen { return w.screen }

// Rect returns the window geometry in screen coordinates.
func (w *Window) Rect() damage.Rect { return w.rect }

// OverrideRedirect reports whether the window manages itself.
func (w *Window) OverrideRedirect() bool { return w.override }

// Mapped reports whether the window is mapped.
func (w *Window) Mapped() bool { return w.mapped }

// Focused reports whether the window has input focus.
func (w *Window) Focused() bool { return w.focused }

// Grabbed reports whether the window is being moved or resized.
func (w *Window) Grabbed() bool { return w.grabbed }

// Destroyed reports whether the window has been removed. Plugins holding a
// stale pointer should treat every operation as a no-op.
func (w *Window) Destroyed() bool { return w.destroyed }

// Visible reports whether the window currently contributes to the screen.
func (w *Window) Visible() bool {
	return w.mapped && !w.destroyed && !w.rect.Empty()
}

// Opacity returns the window's own opacity.
func (w *Window) Opacity() uint16 { return w.opacity }

// Brightness returns the window's own brightness.
func (w *Window) Brightness() uint16 { return w.brightness }

// Saturation returns the window's own saturation.
func (w *Window) Saturation() uint16 { return w.saturation }

// SetOpacity changes the window's opacity and damages it.
func (w *Window) SetOpacity(v uint16) {
	if w.opacity != v {
		w.opacity = v
		w.Damage()
	}
}

// SetBrightness changes the window's brightness and damages it.
func (w *Window) SetBrightness(v uint16) {
	if w.brightness != v {
		w.brightness = v
		w.Damage()
	}
}

// SetSaturation changes the window's saturation and damages it.
func (w *Window) SetSaturation(v uint16) {
	if w.saturation != v {
		w.saturation = v
		w.Damage()
	}
}

// PaintAttrib returns the attributes a paint pass starts from.
func (w *Window) PaintAttrib() WindowPaintAttrib {
	return WindowPaintAttrib{
		Opacity:    w.opacity,
		Brightness: w.brightness,
		Saturation: w.saturation,
	}
}

// Damage requests a repaint of the whole window.
func (w *Window) Damage() {
	w.DamageRect(damage.Rect{Width: w.rect.Width, Height: w.rect.Height}, false)
}

// DamageRect requests a repaint of r, given relative to the window. The
// DamageWindowRect chain may take the damage over; otherwise the screen is
// damaged under the window.
func (w *Window) DamageRect(r damage.Rect, initial bool) {
	if !w.Visible() {
		return
	}
	handled := w.screen.Hooks.DamageWindowRect.Call(DamageWindowRectArgs{
		Window:  w,
		Initial: initial,
		Rect:    r,
	})
	if !handled {
		w.screen.DamageRegion(r.Translate(w.rect.X, w.rect.Y))
	}
}

func (w *Window) setMapped(mapped bool) {
	if w.mapped == mapped {
		return
	}
	if mapped {
		w.mapped = true
		w.DamageRect(damage.Rect{Width: w.rect.Width, Height: w.rect.Height}, true)
		return
	}
	w.Damage()
	w.mapped = false
}

func (w *Window) configure(r damage.Rect) {
	old := w.rect
	if old == r {
		return
	}
	w.Damage()
	w.rect = r

	dx, dy := r.X-old.X, r.Y-old.Y
	dw, dh := r.Width-old.Width, r.Height-old.Height
	hooks := w.screen.Hooks
	if dw != 0 || dh != 0 {
		hooks.WindowResizeNotify.Call(WindowResizeArgs{Window: w, DX: dx, DY: dy, DWidth: dw, DHeight: dh})
	} else {
		hooks.WindowMoveNotify.Call(WindowMoveArgs{Window: w, DX: dx, DY: dy, Immediate: true})
	}
	w.Damage()
}

// propertyChanged applies a 32-bit property value. Opacity-like properties
// keep their top 16 bits.
func (w *Window) propertyChanged(name string, value uint32) {
	switch name {
	case PropertyOpacity:
		w.SetOpacity(uint16(value >> 16))
	case PropertyBrightness:
		w.SetBrightness(uint16(value >> 16))
	case PropertySaturation:
		w.SetSaturation(uint16(value >> 16))
	}
}
