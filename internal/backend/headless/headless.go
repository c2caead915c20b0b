// Package headless provides a display backend with no display: screens,
// outputs and windows exist only as the events fed to it, and the renderer
// records what it was asked to draw.
package headless

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/stormwm/internal/backend"
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// Name is the name the backend registers under.
const Name = "headless"

var (
	// ErrNotStarted is returned by Send before the core started the backend.
	ErrNotStarted = errors.New("headless: backend not started")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("headless: backend closed")
)

func init() {
	backend.Register(Name, func(display string, opts backend.Options) (core.Backend, error) {
		screens, err := ParseScreens(display, opts.RefreshRate)
		if err != nil {
			return nil, err
		}
		return New(screens...), nil
	})
}

// DefaultScreen is used when no screens are given.
var DefaultScreen = core.ScreenInfo{
	Name:        "headless-0",
	Bounds:      damage.Rect{Width: 1024, Height: 768},
	RefreshRate: 60,
}

// Backend is an in-memory display.
type Backend struct {
	mu        sync.Mutex
	screens   []core.ScreenInfo
	renderers []*Renderer
	sink      core.EventSink
	closed    bool
}

// New creates a backend with the given screens, or DefaultScreen.
func New(screens ...core.ScreenInfo) *Backend {
	if len(screens) == 0 {
		screens = []core.ScreenInfo{DefaultScreen}
	}
	b := &Backend{screens: screens}
	for range screens {
		b.renderers = append(b.renderers, &Renderer{})
	}
	return b
}

// ParseScreens reads a display string of the form "1024x768,800x600" into
// one screen per size. An empty string yields DefaultScreen.
func ParseScreens(display string, rate int) ([]core.ScreenInfo, error) {
	if rate <= 0 {
		rate = DefaultScreen.RefreshRate
	}
	display = strings.TrimSpace(display)
	if display == "" {
		s := DefaultScreen
		s.RefreshRate = rate
		return []core.ScreenInfo{s}, nil
	}

	var out []core.ScreenInfo
	for i, part := range strings.Split(display, ",") {
		w, h, ok := strings.Cut(strings.TrimSpace(part), "x")
		if !ok {
			return nil, fmt.Errorf("headless: screen %q: want WIDTHxHEIGHT", part)
		}
		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("headless: screen %q: bad width", part)
		}
		height, err := strconv.Atoi(h)
		if err != nil || height <= 0 {
			return nil, fmt.Errorf("headless: screen %q: bad height", part)
		}
		out = append(out, core.ScreenInfo{
			Name:        fmt.Sprintf("headless-%d", i),
			Bounds:      damage.Rect{Width: width, Height: height},
			RefreshRate: rate,
		})
	}
	return out, nil
}

// Name implements core.Backend.
func (b *Backend) Name() string { return Name }

// Screens implements core.Backend.
func (b *Backend) Screens() ([]core.ScreenInfo, error) {
	out := make([]core.ScreenInfo, len(b.screens))
	copy(out, b.screens)
	return out, nil
}

// Start implements core.Backend.
func (b *Backend) Start(sink core.EventSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sink != nil {
		return errors.New("headless: already started")
	}
	b.sink = sink
	return nil
}

// Renderer implements core.Backend.
func (b *Backend) Renderer(i int) core.Renderer {
	return b.Recorder(i)
}

// Recorder returns the recording renderer of screen i, or nil.
func (b *Backend) Recorder(i int) *Renderer {
	if i < 0 || i >= len(b.renderers) {
		return nil
	}
	return b.renderers[i]
}

// Close implements core.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Send delivers ev as if the display server had produced it. It may be
// called from any goroutine.
func (b *Backend) Send(ev core.Event) error {
	b.mu.Lock()
	sink, closed := b.sink, b.closed
	b.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case sink == nil:
		return ErrNotStarted
	}
	sink(ev)
	return nil
}

// Draw is one DrawWindow call.
type Draw struct {
	Window core.WindowID
	Attrib core.WindowPaintAttrib
	Region []damage.Rect
}

// Frame is everything drawn between BeginFrame and EndFrame.
type Frame struct {
	Mask   core.PaintMask
	Region []damage.Rect
	Draws  []Draw
	Done   bool
}

// Renderer records frames. It is safe to inspect from other goroutines.
type Renderer struct {
	mu     sync.Mutex
	frames []Frame
	fail   error
}

// FailWith makes every later call return err. Nil restores success.
func (r *Renderer) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// BeginFrame implements core.Renderer.
func (r *Renderer) BeginFrame(mask core.PaintMask, region []damage.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := make([]damage.Rect, len(region))
	copy(reg, region)
	r.frames = append(r.frames, Frame{Mask: mask, Region: reg})
	return r.fail
}

// DrawWindow implements core.Renderer.
func (r *Renderer) DrawWindow(w *core.Window, attrib core.WindowPaintAttrib, region []damage.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return errors.New("headless: draw outside a frame")
	}
	reg := make([]damage.Rect, len(region))
	copy(reg, region)
	f := &r.frames[len(r.frames)-1]
	f.Draws = append(f.Draws, Draw{Window: w.ID(), Attrib: attrib, Region: reg})
	return r.fail
}

// EndFrame implements core.Renderer.
func (r *Renderer) EndFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) > 0 {
		r.frames[len(r.frames)-1].Done = true
	}
	return r.fail
}

// Frames returns a copy of the recorded frames.
func (r *Renderer) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Last returns the most recent frame.
func (r *Renderer) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

// Reset forgets the recorded frames.
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}
