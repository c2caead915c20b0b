package core

import "github.com/dshills/stormwm/internal/damage"

// ScreenInfo describes a screen found by a backend.
type ScreenInfo struct {
	Name    string
	Bounds  damage.Rect
	Outputs []Output

	// RefreshRate is zero when the backend cannot tell.
	RefreshRate int
	VSync       bool
}

// Backend connects the core to a display server or stand-in.
type Backend interface {
	// Name returns the backend's short name.
	Name() string

	// Screens reports the screens to manage. It is called once, before
	// Start.
	Screens() ([]ScreenInfo, error)

	// Start begins event delivery. Windows that already exist must be
	// reported as create (and map) events.
	Start(sink EventSink) error

	// Renderer returns the renderer for screen index i.
	Renderer(i int) Renderer

	// Close releases the backend. No events are delivered afterwards.
	Close() error
}

// Renderer draws one screen. It is only used from the loop goroutine.
type Renderer interface {
	BeginFrame(mask PaintMask, region []damage.Rect) error
	DrawWindow(w *Window, attrib WindowPaintAttrib, region []damage.Rect) error
	EndFrame() error
}

type nopRenderer struct{}

func (nopRenderer) BeginFrame(PaintMask, []damage.Rect) error { return nil }
func (nopRenderer) DrawWindow(*Window, WindowPaintAttrib, []damage.Rect) error { return nil }
func (nopRenderer) EndFrame() error { return nil }
