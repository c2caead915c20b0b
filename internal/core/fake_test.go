package core

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/loop"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type drawCall struct {
	window WindowID
	attrib WindowPaintAttrib
	region []damage.Rect
}

type fakeRenderer struct {
	frames  int
	masks   []PaintMask
	regions [][]damage.Rect
	draws   []drawCall
	fail    error
}

func (r *fakeRenderer) BeginFrame(mask PaintMask, region []damage.Rect) error {
	r.frames++
	r.masks = append(r.masks, mask)
	r.regions = append(r.regions, region)
	return r.fail
}

func (r *fakeRenderer) DrawWindow(w *Window, attrib WindowPaintAttrib, region []damage.Rect) error {
	r.draws = append(r.draws, drawCall{window: w.ID(), attrib: attrib, region: region})
	return r.fail
}

func (r *fakeRenderer) EndFrame() error { return nil }

func (r *fakeRenderer) drawnIDs() []WindowID {
	var ids []WindowID
	for _, d := range r.draws {
		ids = append(ids, d.window)
	}
	return ids
}

type fakeBackend struct {
	screens   []ScreenInfo
	renderers []*fakeRenderer
	sink      EventSink
	closed    bool
}

func newFakeBackend(n int) *fakeBackend {
	b := &fakeBackend{}
	for i := 0; i < n; i++ {
		b.screens = append(b.screens, ScreenInfo{
			Name:        fmt.Sprintf("fake-%d", i),
			Bounds:      damage.Rect{Width: 640, Height: 480},
			RefreshRate: 50,
		})
		b.renderers = append(b.renderers, &fakeRenderer{})
	}
	return b
}

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) Screens() ([]ScreenInfo, error) { return b.screens, nil }
func (b *fakeBackend) Start(sink EventSink) error { b.sink = sink; return nil }
func (b *fakeBackend) Renderer(i int) Renderer { return b.renderers[i] }
func (b *fakeBackend) Close() error { b.closed = true; return nil }

// nonBlocking polls the real descriptors without ever sleeping.
var nonBlocking = loop.PollFunc(func(fds []unix.PollFd, _ int) (int, error) {
	return unix.Poll(fds, 0)
})

func newTestCore(t *testing.T, screens int, opts ...Option) (*Core, *fakeBackend, *loop.ManualClock) {
	t.Helper()
	clock := loop.NewManualClock(epoch)
	b := newFakeBackend(screens)
	opts = append([]Option{WithClock(clock), WithPoller(nonBlocking)}, opts...)

	c, err := New(b, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, b, clock
}

func runOnce(t *testing.T, c *Core) {
	t.Helper()
	if err := c.RunOnce(); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
}

func createWindow(t *testing.T, c *Core, screen int, id WindowID, r damage.Rect, mapped bool) *Window {
	t.Helper()
	d := c.Display()
	d.Inject(Event{Type: EventCreateWindow, Screen: screen, Window: id, Rect: r})
	if mapped {
		d.Inject(Event{Type: EventMapWindow, Window: id})
	}
	d.ProcessEvents()
	w := d.FindWindow(id)
	if w == nil {
		t.Fatalf("window %#x not managed after create", uint32(id))
	}
	return w
}
