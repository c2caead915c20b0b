package core

import (
	"fmt"

	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/redraw"
	"github.com/dshills/stormwm/internal/wrap"
)

// Screen is one managed monitor or root window.
type Screen struct {
	display *Display
	cells   privates.Cells
	Hooks   ScreenHooks
	set     *wrap.Set

	index   int
	info    ScreenInfo
	bounds  damage.Rect
	outputs []Output

	// windows is in stacking order, bottom first.
	windows []*Window

	damage   *damage.Tracker
	pacer    *redraw.Pacer
	renderer Renderer

	renderErrors uint64
	windowsDrawn uint64
}

func newScreen(d *Display, index int, info ScreenInfo) *Screen {
	c := d.core
	s := &Screen{
		display: d,
		index:   index,
		info:    info,
		bounds:  info.Bounds,
	}
	s.Hooks, s.set = newScreenHooks(s)
	c.sizeCells(s, privates.KindScreen)

	s.outputs = defaultOutputs(info.Outputs, info.Name, info.Bounds)
	s.damage = damage.NewTracker(info.Bounds.Width, info.Bounds.Height)
	if c.damageThreshold > 0 {
		s.damage.SetThreshold(c.damageThreshold)
	}
	s.pacer = redraw.NewPacer(0, c.clock.Now())
	s.applyRefreshRate()
	s.pacer.SetVSync(c.syncToVBlank && info.VSync)

	s.renderer = d.backend.Renderer(index)
	if s.renderer == nil {
		s.renderer = nopRenderer{}
	}
	return s
}

func defaultOutputs(outputs []Output, name string, bounds damage.Rect) []Output {
	if len(outputs) > 0 {
		out := make([]Output, len(outputs))
		copy(out, outputs)
		return out
	}
	return []Output{{Name: name, Rect: bounds}}
}

func (s *Screen) applyRefreshRate() {
	rate := s.display.core.refreshRate
	if rate <= 0 {
		rate = s.info.RefreshRate
	}
	s.pacer.SetRefreshRate(rate)
}

// Kind implements Object.
func (s *Screen) Kind() privates.Kind { return privates.KindScreen }

// Privates implements privates.Holder.
func (s *Screen) Privates() *privates.Cells { return &s.cells }

// Interceptions implements Object.
func (s *Screen) Interceptions() *wrap.Set { return s.set }

func (s *Screen) String() string { return fmt.Sprintf("screen %d (%s)", s.index, s.info.Name) }

// Display returns the owning display.
func (s *Screen) Display() *Display { return s.display }

// Core returns the owning core.
func (s *Screen) Core() *Core { return s.display.core }

// Index returns the screen's position in the display's screen list.
func (s *Screen) Index() int { return s.index }

// Name returns the backend's name for the screen.
func (s *Screen) Name() string { return s.info.Name }

// Bounds returns the screen rectangle.
func (s *Screen) Bounds() damage.Rect { return s.bounds }

// Outputs returns the screen's monitor outputs.
func (s *Screen) Outputs() []Output {
	out := make([]Output, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Windows returns the managed windows in stacking order, bottom first.
func (s *Screen) Windows() []*Window {
	out := make([]*Window, len(s.windows))
	copy(out, s.windows)
	return out
}

// Pacer returns the screen's frame pacing state.
func (s *Screen) Pacer() *redraw.Pacer { return s.pacer }

// Renderer returns the screen's renderer.
func (s *Screen) Renderer() Renderer { return s.renderer }

// RenderErrors returns how many renderer calls failed.
func (s *Screen) RenderErrors() uint64 { return s.renderErrors }

// WindowsDrawn returns how many window draws reached the renderer.
func (s *Screen) WindowsDrawn() uint64 { return s.windowsDrawn }

// DamageScreen requests a repaint of the whole screen.
func (s *Screen) DamageScreen() {
	s.damage.AddAll()
	s.pacer.MarkDamaged()
}

// DamageRegion requests a repaint of r.
func (s *Screen) DamageRegion(r damage.Rect) {
	if s.damage.Add(r) {
		s.pacer.MarkDamaged()
	}
}

// DamagePending requests a paint pass without damaging anything, giving
// PreparePaint a chance to add damage.
func (s *Screen) DamagePending() {
	s.damage.AddPending()
	s.pacer.MarkDamaged()
}

// DamageMask returns the pending damage flags.
func (s *Screen) DamageMask() damage.Mask { return s.damage.Mask() }

// DamagedRects returns the pending damage.
func (s *Screen) DamagedRects() []damage.Rect { return s.damage.Rects() }

func (s *Screen) addWindow(ev Event) (*Window, error) {
	d := s.display
	if _, exists := d.windows[ev.Window]; exists {
		return nil, fmt.Errorf("%w: %#x", ErrWindowExists, uint32(ev.Window))
	}

	w := newWindow(s, ev)
	s.windows = append(s.windows, w)
	d.windows[w.id] = w

	if err := d.core.initWindowPlugins(w); err != nil {
		s.unlink(w)
		w.destroyed = true
		return nil, err
	}

	d.core.objectAdded(s, w)
	s.Hooks.WindowAddNotify.Call(w)
	return w, nil
}

func (s *Screen) removeWindow(w *Window) {
	if w.mapped {
		w.Damage()
	}
	c := s.display.core
	c.objectRemoved(s, w)
	c.finiWindowPlugins(w)

	if s.display.active == w {
		s.display.active = nil
	}
	s.unlink(w)
	w.destroyed = true
	w.cells = privates.Cells{}
}

func (s *Screen) unlink(w *Window) {
	delete(s.display.windows, w.id)
	if i := s.stackIndex(w); i >= 0 {
		s.windows = append(s.windows[:i], s.windows[i+1:]...)
	}
}

func (s *Screen) stackIndex(w *Window) int {
	for i, x := range s.windows {
		if x == w {
			return i
		}
	}
	return -1
}

// restack places w directly above the window with id above, or at the
// bottom when above is zero. An unknown sibling puts w on top.
func (s *Screen) restack(w *Window, above WindowID) {
	i := s.stackIndex(w)
	if i < 0 {
		return
	}
	s.windows = append(s.windows[:i], s.windows[i+1:]...)

	pos := len(s.windows)
	if above == 0 {
		pos = 0
	} else {
		for j, x := range s.windows {
			if x.id == above {
				pos = j + 1
				break
			}
		}
	}
	s.windows = append(s.windows, nil)
	copy(s.windows[pos+1:], s.windows[pos:])
	s.windows[pos] = w

	if w.mapped {
		w.Damage()
	}
}

func (s *Screen) changeOutputs(outputs []Output, bounds damage.Rect) {
	if !bounds.Empty() && bounds != s.bounds {
		s.bounds = bounds
		s.damage.Resize(bounds.Width, bounds.Height)
	}
	s.outputs = defaultOutputs(outputs, s.info.Name, s.bounds)
	s.Hooks.OutputChangeNotify.Call(Void{})
	s.DamageScreen()
}
