package core

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/redraw"
	"github.com/dshills/stormwm/internal/wrap"
)

func TestFirstFramePaintsEverything(t *testing.T) {
	c, b, _ := newTestCore(t, 2)
	createWindow(t, c, 0, 0x1, damage.Rect{X: 10, Y: 10, Width: 100, Height: 100}, true)
	createWindow(t, c, 0, 0x2, damage.Rect{X: 600, Y: 400, Width: 100, Height: 100}, true)
	createWindow(t, c, 0, 0x3, damage.Rect{X: 50, Y: 50, Width: 20, Height: 20}, false)

	runOnce(t, c)

	for i, r := range b.renderers {
		if r.frames != 1 {
			t.Fatalf("screen %d frames = %d, want 1", i, r.frames)
		}
		if r.masks[0] != PaintFull {
			t.Errorf("screen %d mask = %v, want PaintFull", i, r.masks[0])
		}
	}

	r := b.renderers[0]
	if got, want := r.drawnIDs(), []WindowID{0x1, 0x2}; !reflect.DeepEqual(got, want) {
		t.Errorf("drawn = %v, want %v (bottom first, mapped only)", got, want)
	}
	clipped := []damage.Rect{{X: 600, Y: 400, Width: 40, Height: 80}}
	if got := r.draws[1].region; !reflect.DeepEqual(got, clipped) {
		t.Errorf("region of 0x2 = %v, want %v", got, clipped)
	}

	s := c.Display().Screen(0)
	if s.DamageMask() != 0 {
		t.Errorf("DamageMask() = %v after paint, want none", s.DamageMask())
	}
	if s.Pacer().State() != redraw.Idle {
		t.Errorf("State() = %v, want Idle", s.Pacer().State())
	}
	if s.WindowsDrawn() != 2 {
		t.Errorf("WindowsDrawn() = %d, want 2", s.WindowsDrawn())
	}
}

func TestPacingDefersFrame(t *testing.T) {
	c, b, clock := newTestCore(t, 1)
	createWindow(t, c, 0, 0x1, damage.Rect{Width: 100, Height: 100}, true)
	runOnce(t, c)
	r := b.renderers[0]

	c.Display().Inject(Event{Type: EventDamage, Window: 0x1, Rect: damage.Rect{Width: 5, Height: 5}})
	runOnce(t, c)
	if r.frames != 1 {
		t.Fatalf("frames = %d, want 1 while inside the redraw window", r.frames)
	}
	s := c.Display().Screen(0)
	if got := s.Pacer().Stats().Skipped; got != 1 {
		t.Errorf("Skipped = %d, want 1", got)
	}
	if s.Pacer().State() != redraw.Damaged {
		t.Errorf("State() = %v, want Damaged", s.Pacer().State())
	}

	clock.Advance(20 * time.Millisecond)
	runOnce(t, c)
	if r.frames != 2 {
		t.Fatalf("frames = %d, want 2 once the interval passed", r.frames)
	}
	if r.masks[1] != PaintRegion {
		t.Errorf("mask = %v, want PaintRegion", r.masks[1])
	}
	if want := []damage.Rect{{Width: 5, Height: 5}}; !reflect.DeepEqual(r.regions[1], want) {
		t.Errorf("region = %v, want %v", r.regions[1], want)
	}
}

func TestUndamagedScreenGoesIdle(t *testing.T) {
	c, b, _ := newTestCore(t, 1)
	runOnce(t, c)
	runOnce(t, c)

	s := c.Display().Screen(0)
	if !s.Pacer().Idle() {
		t.Error("Idle() = false for an undamaged screen")
	}
	if b.renderers[0].frames != 1 {
		t.Errorf("frames = %d, want 1", b.renderers[0].frames)
	}
}

func TestDamageDuringPaintIsKept(t *testing.T) {
	c, b, clock := newTestCore(t, 1)
	s := c.Display().Screen(0)
	late := damage.Rect{X: 1, Y: 1, Width: 2, Height: 2}

	once := true
	s.Hooks.PaintScreen.Install("anim", func(a PaintScreenArgs, next wrap.Next[PaintScreenArgs, bool]) bool {
		if once {
			once = false
			s.DamageRegion(late)
		}
		return next(a)
	})

	runOnce(t, c)
	if got := s.DamagedRects(); !reflect.DeepEqual(got, []damage.Rect{late}) {
		t.Fatalf("DamagedRects() = %v, want %v", got, []damage.Rect{late})
	}
	if s.Pacer().State() != redraw.Damaged {
		t.Errorf("State() = %v, want Damaged", s.Pacer().State())
	}

	clock.Advance(20 * time.Millisecond)
	runOnce(t, c)
	r := b.renderers[0]
	if r.frames != 2 || !reflect.DeepEqual(r.regions[1], []damage.Rect{late}) {
		t.Errorf("second frame: frames=%d regions=%v", r.frames, r.regions)
	}
}

func TestPreparePaintCanAddDamage(t *testing.T) {
	c, b, _ := newTestCore(t, 1)
	s := c.Display().Screen(0)
	s.damage.Clear()
	s.DamagePending()

	extra := damage.Rect{X: 10, Y: 10, Width: 10, Height: 10}
	var elapsed []time.Duration
	s.Hooks.PreparePaint.Install("anim", func(d time.Duration, next wrap.Next[time.Duration, Void]) Void {
		elapsed = append(elapsed, d)
		s.DamageRegion(extra)
		return next(d)
	})

	runOnce(t, c)
	r := b.renderers[0]
	if r.frames != 1 || r.masks[0] != PaintRegion {
		t.Fatalf("frames=%d masks=%v", r.frames, r.masks)
	}
	if !reflect.DeepEqual(r.regions[0], []damage.Rect{extra}) {
		t.Errorf("region = %v, want %v", r.regions[0], []damage.Rect{extra})
	}
	// An idle screen is handed one full interval.
	if !reflect.DeepEqual(elapsed, []time.Duration{20 * time.Millisecond}) {
		t.Errorf("elapsed = %v, want [20ms]", elapsed)
	}
}

func TestPaintWindowInterception(t *testing.T) {
	c, b, _ := newTestCore(t, 1)
	s := c.Display().Screen(0)
	createWindow(t, c, 0, 0x1, damage.Rect{Width: 10, Height: 10}, true)
	createWindow(t, c, 0, 0x2, damage.Rect{X: 20, Width: 10, Height: 10}, true)

	s.Hooks.PaintWindow.Install("dim", func(a PaintWindowArgs, next wrap.Next[PaintWindowArgs, bool]) bool {
		switch a.Window.ID() {
		case 0x1:
			a.Attrib.Brightness = 0x8000
		case 0x2:
			a.Attrib.Opacity = 0
		}
		return next(a)
	})

	runOnce(t, c)
	r := b.renderers[0]
	if len(r.draws) != 1 {
		t.Fatalf("draws = %d, want 1 (transparent window skipped)", len(r.draws))
	}
	want := WindowPaintAttrib{Opacity: OpaqueValue, Brightness: 0x8000, Saturation: OpaqueValue}
	if r.draws[0].attrib != want {
		t.Errorf("attrib = %+v, want %+v", r.draws[0].attrib, want)
	}
}

func TestPaintPerOutput(t *testing.T) {
	c, _, _ := newTestCore(t, 1)
	s := c.Display().Screen(0)
	c.Display().Inject(Event{
		Type: EventOutputChange,
		Outputs: []Output{
			{Name: "a", Rect: damage.Rect{Width: 320, Height: 480}},
			{Name: "b", Rect: damage.Rect{X: 320, Width: 320, Height: 480}},
		},
	})
	c.Display().ProcessEvents()

	var names []string
	s.Hooks.PaintOutput.Install("t", func(a PaintOutputArgs, next wrap.Next[PaintOutputArgs, bool]) bool {
		names = append(names, a.Output.Name)
		return next(a)
	})

	runOnce(t, c)
	if want := []string{"a", "b"}; !reflect.DeepEqual(names, want) {
		t.Errorf("outputs painted = %v, want %v", names, want)
	}
}

func TestRendererErrorsAreCounted(t *testing.T) {
	c, b, _ := newTestCore(t, 1)
	createWindow(t, c, 0, 0x1, damage.Rect{Width: 10, Height: 10}, true)
	b.renderers[0].fail = errors.New("lost context")

	runOnce(t, c)
	s := c.Display().Screen(0)
	if got := s.RenderErrors(); got != 2 {
		t.Errorf("RenderErrors() = %d, want 2 (begin frame and draw)", got)
	}
	if s.WindowsDrawn() != 0 {
		t.Errorf("WindowsDrawn() = %d, want 0", s.WindowsDrawn())
	}
}
