package redraw

import (
	"errors"
	"fmt"
	"time"
)

// DefaultRefreshRate is used when the display does not report one.
const DefaultRefreshRate = 50

const (
	// slowLimit is how far frameStatus must fall before frames are dropped.
	slowLimit = -1
	// fastLimit is how far frameStatus must rise before frames are restored.
	fastLimit = 4
)

// ErrPaintState is returned for a paint transition made from the wrong state.
var ErrPaintState = errors.New("redraw: invalid paint transition")

// Stats counts what a Pacer has done.
type Stats struct {
	Frames      uint64
	Skipped     uint64
	MultChanges uint64
}

// Pacer is the frame pacing state of one screen.
// It is not safe for concurrent use.
type Pacer struct {
	refreshRate int
	optimal     time.Duration
	redrawTime  time.Duration
	timeMult    int
	frameStatus int

	lastRedraw time.Time
	idle       bool
	vsync      bool
	forced     bool

	state State
	stats Stats
}

// NewPacer creates a pacer for a display refreshing at rate Hz, treating now
// as the last redraw.
func NewPacer(rate int, now time.Time) *Pacer {
	p := &Pacer{
		timeMult:   1,
		lastRedraw: now,
		idle:       true,
	}
	p.SetRefreshRate(rate)
	return p
}

// SetRefreshRate resets the target interval to one refresh period.
// Non-positive rates select DefaultRefreshRate.
func (p *Pacer) SetRefreshRate(rate int) {
	if rate <= 0 {
		rate = DefaultRefreshRate
	}
	p.refreshRate = rate
	p.optimal = time.Second / time.Duration(rate)
	p.redrawTime = p.optimal
	p.timeMult = 1
	p.frameStatus = 0
}

// RefreshRate returns the rate in Hz.
func (p *Pacer) RefreshRate() int { return p.refreshRate }

// OptimalRedrawTime returns one refresh period.
func (p *Pacer) OptimalRedrawTime() time.Duration { return p.optimal }

// RedrawTime returns the current target interval between frames.
func (p *Pacer) RedrawTime() time.Duration { return p.redrawTime }

// TimeMult returns how many refresh periods one frame currently spans.
func (p *Pacer) TimeMult() int { return p.timeMult }

// FrameStatus returns the hysteresis counter.
func (p *Pacer) FrameStatus() int { return p.frameStatus }

// LastRedraw returns when the last frame started.
func (p *Pacer) LastRedraw() time.Time { return p.lastRedraw }

// SetVSync records whether frames are paced by vertical sync.
func (p *Pacer) SetVSync(on bool) { p.vsync = on }

// VSync reports whether frames are paced by vertical sync.
func (p *Pacer) VSync() bool { return p.vsync }

// SetIdle records whether the screen went a loop iteration with nothing to
// paint.
func (p *Pacer) SetIdle(idle bool) { p.idle = idle }

// Idle reports whether the screen is idle.
func (p *Pacer) Idle() bool { return p.idle }

// Force makes the next NextDelay return zero regardless of pacing.
func (p *Pacer) Force() { p.forced = true }

// NextDelay returns how long to wait before the next frame may start; zero
// means paint now. Every call feeds the pacing counters.
func (p *Pacer) NextDelay(now time.Time) time.Duration {
	diff := now.Sub(p.lastRedraw)
	if diff < 0 {
		diff = 0
	}

	if p.idle || p.vsync {
		if p.timeMult > 1 {
			p.frameStatus = -1
			p.redrawTime = p.optimal
			p.timeMult--
			p.stats.MultChanges++
		}
	} else if diff > p.redrawTime {
		if p.frameStatus > 0 {
			p.frameStatus = 0
		}
		next := p.optimal * time.Duration(p.timeMult+1)
		if diff > next {
			p.frameStatus--
			if p.frameStatus < slowLimit {
				p.timeMult++
				p.redrawTime = next
				diff = next
				p.stats.MultChanges++
			}
		}
	} else if diff < p.redrawTime {
		if p.frameStatus < 0 {
			p.frameStatus = 0
		}
		if p.timeMult > 1 {
			next := p.optimal * time.Duration(p.timeMult-1)
			if diff < next {
				p.frameStatus++
				if p.frameStatus > fastLimit {
					p.timeMult--
					p.redrawTime = next
					p.stats.MultChanges++
				}
			}
		}
	}

	if p.forced || diff >= p.redrawTime {
		return 0
	}
	return p.redrawTime - diff
}

// Elapsed returns the animation step to hand to PreparePaint: the time since
// the last frame, or one target interval when the screen was idle.
func (p *Pacer) Elapsed(now time.Time) time.Duration {
	if p.idle {
		return p.redrawTime
	}
	d := now.Sub(p.lastRedraw)
	if d < 0 {
		return 0
	}
	return d
}

// State returns the paint cycle state.
func (p *Pacer) State() State { return p.state }

// MarkDamaged moves an idle screen to Damaged.
func (p *Pacer) MarkDamaged() {
	if p.state == Idle {
		p.state = Damaged
	}
}

// Skip records that a damaged screen was not yet due.
func (p *Pacer) Skip() {
	p.stats.Skipped++
}

// BeginPaint starts a frame at now.
func (p *Pacer) BeginPaint(now time.Time) error {
	if p.state == Painting {
		return fmt.Errorf("%w: already painting", ErrPaintState)
	}
	p.state = Painting
	p.lastRedraw = now
	p.idle = false
	p.forced = false
	p.stats.Frames++
	return nil
}

// EndPaint finishes a frame. damaged reports whether new damage arrived
// while painting.
func (p *Pacer) EndPaint(damaged bool) error {
	if p.state != Painting {
		return fmt.Errorf("%w: not painting", ErrPaintState)
	}
	if damaged {
		p.state = Damaged
	} else {
		p.state = Idle
	}
	return nil
}

// Stats returns the pacing counters.
func (p *Pacer) Stats() Stats { return p.stats }
