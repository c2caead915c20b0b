package x11

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/composite"
	"github.com/jezek/xgb/xproto"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// pixmapCache records which windows' named pixmaps are out of date. The
// reader goroutine marks windows; renderers consume the marks.
type pixmapCache struct {
	mu    sync.Mutex
	stale map[xproto.Window]bool
	gone  map[xproto.Window]bool
}

func newPixmapCache() *pixmapCache {
	return &pixmapCache{
		stale: make(map[xproto.Window]bool),
		gone:  make(map[xproto.Window]bool),
	}
}

func (c *pixmapCache) invalidate(w xproto.Window, gone bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale[w] = true
	if gone {
		c.gone[w] = true
	}
}

// take reports and clears the stale mark of w.
func (c *pixmapCache) take(w xproto.Window) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stale[w]
	delete(c.stale, w)
	return s
}

// reap returns and forgets the destroyed windows.
func (c *pixmapCache) reap() []xproto.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.gone) == 0 {
		return nil
	}
	out := make([]xproto.Window, 0, len(c.gone))
	for w := range c.gone {
		out = append(out, w)
		delete(c.stale, w)
	}
	clear(c.gone)
	return out
}

type named struct {
	pixmap xproto.Pixmap
	width  int
	height int
}

// Renderer composites one X screen onto its overlay window.
type Renderer struct {
	conn    *xgb.Conn
	overlay xproto.Window
	copyGC  xproto.Gcontext
	fillGC  xproto.Gcontext
	cache   *pixmapCache
	names   map[xproto.Window]named
}

func newRenderer(conn *xgb.Conn, screen xproto.ScreenInfo, cache *pixmapCache) (*Renderer, error) {
	ov, err := composite.GetOverlayWindow(conn, screen.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("overlay window: %w", err)
	}
	r := &Renderer{
		conn:    conn,
		overlay: ov.OverlayWin,
		cache:   cache,
		names:   make(map[xproto.Window]named),
	}

	if r.copyGC, err = xproto.NewGcontextId(conn); err != nil {
		return nil, err
	}
	err = xproto.CreateGCChecked(conn, r.copyGC, xproto.Drawable(r.overlay),
		xproto.GcSubwindowMode|xproto.GcGraphicsExposures,
		[]uint32{xproto.SubwindowModeIncludeInferiors, 0}).Check()
	if err != nil {
		return nil, fmt.Errorf("copy gc: %w", err)
	}

	if r.fillGC, err = xproto.NewGcontextId(conn); err != nil {
		return nil, err
	}
	err = xproto.CreateGCChecked(conn, r.fillGC, xproto.Drawable(r.overlay),
		xproto.GcForeground, []uint32{screen.BlackPixel}).Check()
	if err != nil {
		return nil, fmt.Errorf("fill gc: %w", err)
	}
	return r, nil
}

func xrects(region []damage.Rect) []xproto.Rectangle {
	out := make([]xproto.Rectangle, len(region))
	for i, r := range region {
		out[i] = xproto.Rectangle{X: int16(r.X), Y: int16(r.Y), Width: uint16(r.Width), Height: uint16(r.Height)}
	}
	return out
}

// BeginFrame implements core.Renderer: pixmaps of destroyed windows are
// freed and the damaged area is cleared.
func (r *Renderer) BeginFrame(mask core.PaintMask, region []damage.Rect) error {
	for _, w := range r.cache.reap() {
		if n, ok := r.names[w]; ok {
			xproto.FreePixmap(r.conn, n.pixmap)
			delete(r.names, w)
		}
	}
	if len(region) > 0 {
		xproto.PolyFillRectangle(r.conn, xproto.Drawable(r.overlay), r.fillGC, xrects(region))
	}
	return nil
}

// pixmap returns the current contents pixmap of w, naming a new one when
// the window was remapped or resized.
func (r *Renderer) pixmap(w xproto.Window, rect damage.Rect) (xproto.Pixmap, error) {
	n, ok := r.names[w]
	if ok && !r.cache.take(w) && n.width == rect.Width && n.height == rect.Height {
		return n.pixmap, nil
	}
	if ok {
		xproto.FreePixmap(r.conn, n.pixmap)
		delete(r.names, w)
	}
	p, err := xproto.NewPixmapId(r.conn)
	if err != nil {
		return 0, err
	}
	if err := composite.NameWindowPixmapChecked(r.conn, w, p).Check(); err != nil {
		return 0, fmt.Errorf("name pixmap of %#x: %w", uint32(w), err)
	}
	r.names[w] = named{pixmap: p, width: rect.Width, height: rect.Height}
	return p, nil
}

// DrawWindow implements core.Renderer.
func (r *Renderer) DrawWindow(w *core.Window, attrib core.WindowPaintAttrib, region []damage.Rect) error {
	xw := xproto.Window(w.ID())
	frame := w.Rect()
	p, err := r.pixmap(xw, frame)
	if err != nil {
		return err
	}
	for _, d := range region {
		xproto.CopyArea(r.conn, xproto.Drawable(p), xproto.Drawable(r.overlay), r.copyGC,
			int16(d.X-frame.X), int16(d.Y-frame.Y),
			int16(d.X+attrib.XOffset), int16(d.Y+attrib.YOffset),
			uint16(d.Width), uint16(d.Height))
	}
	return nil
}

// EndFrame implements core.Renderer.
func (r *Renderer) EndFrame() error {
	return nil
}
