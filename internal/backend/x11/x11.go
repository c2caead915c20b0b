// Package x11 runs the window manager as a compositing manager on an X
// server.
//
// Startup takes the window manager selection by asking for substructure
// redirection on every root, redirects all top-level windows off screen
// with the Composite extension, and tracks their contents with the Damage
// extension. Frames are assembled on the composite overlay window by copying
// each window's named pixmap. The core protocol cannot blend, so translucent
// windows are drawn opaque; opacity 0 still hides a window.
package x11

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/composite"
	xdamage "github.com/jezek/xgb/damage"
	"github.com/jezek/xgb/xproto"

	"github.com/dshills/stormwm/internal/backend"
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// Name is the name the backend registers under.
const Name = "x11"

var (
	// ErrAnotherWM is returned when a root already has a window manager.
	ErrAnotherWM = errors.New("x11: another window manager is running")

	// ErrNoComposite is returned when the server lacks the Composite
	// extension.
	ErrNoComposite = errors.New("x11: composite extension not available")

	// ErrNoDamage is returned when the server lacks the Damage extension.
	ErrNoDamage = errors.New("x11: damage extension not available")
)

const opacityAtomName = "_NET_WM_WINDOW_OPACITY"

const rootEventMask = xproto.EventMaskSubstructureRedirect |
	xproto.EventMaskSubstructureNotify |
	xproto.EventMaskStructureNotify |
	xproto.EventMaskPropertyChange

const clientEventMask = xproto.EventMaskFocusChange | xproto.EventMaskPropertyChange

func init() {
	backend.Register(Name, func(display string, opts backend.Options) (core.Backend, error) {
		return Open(display, opts)
	})
}

// Backend is a connection to an X server.
type Backend struct {
	conn    *xgb.Conn
	display string
	opts    backend.Options
	logger  core.Logger

	roots     []xproto.ScreenInfo
	renderers []*Renderer
	pixmaps   *pixmapCache
	tr        *translator

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Open connects to display and checks the extensions a compositing
// manager needs. An empty display uses $DISPLAY.
func Open(display string, opts backend.Options) (*Backend, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("x11: open display %q: %w", display, err)
	}
	fail := func(err error) (*Backend, error) {
		conn.Close()
		return nil, err
	}

	if err := composite.Init(conn); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoComposite, err))
	}
	if _, err := composite.QueryVersion(conn, 0, 4).Reply(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoComposite, err))
	}
	if err := xdamage.Init(conn); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoDamage, err))
	}
	if _, err := xdamage.QueryVersion(conn, 1, 1).Reply(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoDamage, err))
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	b := &Backend{
		conn:    conn,
		display: display,
		opts:    opts,
		logger:  logger,
		roots:   xproto.Setup(conn).Roots,
		pixmaps: newPixmapCache(),
		done:    make(chan struct{}),
	}
	return b, nil
}

// Name implements core.Backend.
func (b *Backend) Name() string { return Name }

// Screens implements core.Backend: one screen per X root.
func (b *Backend) Screens() ([]core.ScreenInfo, error) {
	out := make([]core.ScreenInfo, len(b.roots))
	for i, r := range b.roots {
		bounds := damage.Rect{Width: int(r.WidthInPixels), Height: int(r.HeightInPixels)}
		out[i] = core.ScreenInfo{
			Name:        fmt.Sprintf("%s.%d", b.display, i),
			Bounds:      bounds,
			RefreshRate: b.opts.RefreshRate,
		}
	}
	return out, nil
}

// Start implements core.Backend. It fails when another manager owns a root
// or windows cannot be redirected; both are fatal at startup.
func (b *Backend) Start(sink core.EventSink) error {
	opacity, err := xproto.InternAtom(b.conn, false, uint16(len(opacityAtomName)), opacityAtomName).Reply()
	if err != nil {
		return fmt.Errorf("x11: intern %s: %w", opacityAtomName, err)
	}

	roots := make(map[xproto.Window]int, len(b.roots))
	for i, r := range b.roots {
		roots[r.Root] = i
	}
	b.tr = newTranslator(b, sink, roots, opacity.Atom)

	for i, r := range b.roots {
		err := xproto.ChangeWindowAttributesChecked(b.conn, r.Root, xproto.CwEventMask,
			[]uint32{rootEventMask}).Check()
		if err != nil {
			return fmt.Errorf("%w on screen %d: %v", ErrAnotherWM, i, err)
		}
		if err := composite.RedirectSubwindowsChecked(b.conn, r.Root, composite.RedirectManual).Check(); err != nil {
			return fmt.Errorf("x11: redirect screen %d: %w", i, err)
		}
		rend, err := newRenderer(b.conn, r, b.pixmaps)
		if err != nil {
			return fmt.Errorf("x11: screen %d: %w", i, err)
		}
		b.renderers = append(b.renderers, rend)
	}

	for i, r := range b.roots {
		if err := b.scan(i, r.Root); err != nil {
			b.logger.Warn("x11: scanning screen %d: %v", i, err)
		}
	}

	go b.readEvents()
	b.logger.Info("x11: managing %d root(s) on %q", len(b.roots), b.display)
	return nil
}

// scan reports the windows that existed before startup.
func (b *Backend) scan(screen int, root xproto.Window) error {
	tree, err := xproto.QueryTree(b.conn, root).Reply()
	if err != nil {
		return err
	}
	for _, w := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(b.conn, w).Reply()
		if err != nil {
			continue
		}
		geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(w)).Reply()
		if err != nil {
			continue
		}
		b.tr.existing(screen, w, frameRect(geom.X, geom.Y, geom.Width, geom.Height, geom.BorderWidth),
			attrs.OverrideRedirect, attrs.MapState == xproto.MapStateViewable)
	}
	return nil
}

func (b *Backend) readEvents() {
	defer close(b.done)
	for {
		ev, xerr := b.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			b.tr.protocolError(xerr)
			continue
		}
		b.tr.translate(ev)
	}
}

// Renderer implements core.Backend.
func (b *Backend) Renderer(i int) core.Renderer {
	if i < 0 || i >= len(b.renderers) {
		return nil
	}
	return b.renderers[i]
}

// Close implements core.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	for i, r := range b.roots {
		if i < len(b.renderers) {
			composite.ReleaseOverlayWindow(b.conn, r.Root)
		}
	}
	b.conn.Close()
	if b.tr != nil {
		<-b.done
	}
	return nil
}

// MapWindow implements server.
func (b *Backend) MapWindow(w xproto.Window) {
	xproto.MapWindow(b.conn, w)
}

// ConfigureWindow implements server.
func (b *Backend) ConfigureWindow(w xproto.Window, mask uint16, values []uint32) {
	xproto.ConfigureWindow(b.conn, w, mask, values)
}

// Track implements server: it selects client events on w and starts
// damage reporting for it.
func (b *Backend) Track(w xproto.Window) {
	xproto.ChangeWindowAttributes(b.conn, w, xproto.CwEventMask, []uint32{clientEventMask})
	id, err := xdamage.NewDamageId(b.conn)
	if err != nil {
		b.logger.Warn("x11: damage id for %#x: %v", uint32(w), err)
		return
	}
	xdamage.Create(b.conn, id, xproto.Drawable(w), xdamage.ReportLevelRawRectangles)
}

// Opacity implements server.
func (b *Backend) Opacity(w xproto.Window, atom xproto.Atom) uint32 {
	reply, err := xproto.GetProperty(b.conn, false, w, atom, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil || reply.ValueLen == 0 || len(reply.Value) < 4 {
		return 0xffffffff
	}
	return xgb.Get32(reply.Value)
}

// Invalidate implements server.
func (b *Backend) Invalidate(w xproto.Window, gone bool) {
	b.pixmaps.invalidate(w, gone)
}

func frameRect(x, y int16, w, h, border uint16) damage.Rect {
	return damage.Rect{
		X:      int(x),
		Y:      int(y),
		Width:  int(w) + 2*int(border),
		Height: int(h) + 2*int(border),
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
