package core

import (
	"time"

	"github.com/dshills/stormwm/internal/damage"
)

// paint runs one frame on s. Damage is taken from the tracker after
// PreparePaint and before PaintScreen, so damage added while painting is
// kept for the next frame.
func (s *Screen) paint(now time.Time) {
	log := s.display.core.logger

	elapsed := s.pacer.Elapsed(now)
	if err := s.pacer.BeginPaint(now); err != nil {
		log.Warn("%s: %v", s, err)
		return
	}

	s.Hooks.PreparePaint.Call(elapsed)

	dmask, region := s.damage.Take()
	mask := PaintRegion
	if dmask&damage.All != 0 {
		mask = PaintFull
		region = []damage.Rect{s.bounds}
	}

	if err := s.renderer.BeginFrame(mask, region); err != nil {
		s.renderErrors++
		log.Debug("%s: begin frame: %v", s, err)
	}
	s.Hooks.PaintScreen.Call(PaintScreenArgs{Region: region, Mask: mask})
	if err := s.renderer.EndFrame(); err != nil {
		s.renderErrors++
		log.Debug("%s: end frame: %v", s, err)
	}
	s.Hooks.DonePaint.Call(Void{})

	if err := s.pacer.EndPaint(s.damage.Damaged()); err != nil {
		log.Warn("%s: %v", s, err)
	}
}

// clip returns the parts of region inside r.
func clip(region []damage.Rect, r damage.Rect) []damage.Rect {
	var out []damage.Rect
	for _, d := range region {
		if x := d.Intersect(r); !x.Empty() {
			out = append(out, x)
		}
	}
	return out
}

// paintScreen is the base of the PaintScreen chain: it paints every output
// the region touches.
func (s *Screen) paintScreen(a PaintScreenArgs) bool {
	for _, o := range s.outputs {
		region := clip(a.Region, o.Rect)
		if len(region) == 0 {
			continue
		}
		s.Hooks.PaintOutput.Call(PaintOutputArgs{Output: o, Region: region, Mask: a.Mask})
	}
	return true
}

// paintOutput is the base of the PaintOutput chain: it paints the visible
// windows under the region, bottom first.
func (s *Screen) paintOutput(a PaintOutputArgs) bool {
	for _, w := range s.Windows() {
		if !w.Visible() {
			continue
		}
		region := clip(a.Region, w.rect)
		if len(region) == 0 {
			continue
		}
		s.Hooks.PaintWindow.Call(PaintWindowArgs{
			Window: w,
			Attrib: w.PaintAttrib(),
			Region: region,
			Mask:   a.Mask,
		})
	}
	return true
}

// paintWindow is the base of the PaintWindow chain. It reports whether the
// window was drawn.
func (s *Screen) paintWindow(a PaintWindowArgs) bool {
	if a.Attrib.Opacity == 0 || a.Window.destroyed {
		return false
	}
	if err := s.renderer.DrawWindow(a.Window, a.Attrib, a.Region); err != nil {
		s.renderErrors++
		s.display.core.logger.Debug("%s: draw %s: %v", s, a.Window, err)
		return false
	}
	s.windowsDrawn++
	return true
}
