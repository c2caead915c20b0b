// Package term runs the window manager as a nested display inside a
// terminal. The terminal is one screen; each character cell is one pixel.
// Client windows are simulated by the backend and driven from the keyboard.
package term

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/stormwm/internal/backend"
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// Name is the name the backend registers under.
const Name = "term"

// DefaultRefreshRate is reported when none is configured.
const DefaultRefreshRate = 30

func init() {
	backend.Register(Name, func(_ string, opts backend.Options) (core.Backend, error) {
		return New(
			WithRefreshRate(opts.RefreshRate),
			WithLogger(opts.Logger),
			WithQuit(opts.Quit),
		)
	})
}

// Option configures a Backend.
type Option func(*Backend)

// WithScreen uses s instead of the process terminal.
func WithScreen(s tcell.Screen) Option {
	return func(b *Backend) { b.screen = s }
}

// WithRefreshRate sets the reported refresh rate.
func WithRefreshRate(hz int) Option {
	return func(b *Backend) {
		if hz > 0 {
			b.rate = hz
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithQuit sets the function called when the user quits.
func WithQuit(fn func()) Option {
	return func(b *Backend) { b.quit = fn }
}

// Backend is a nested display on a tcell screen.
type Backend struct {
	screen tcell.Screen
	rate   int
	logger core.Logger
	quit   func()

	initOnce sync.Once
	initErr  error
	ready    bool

	sink    core.EventSink
	clients *clients
	done    chan struct{}
	closed  bool
}

// New creates a terminal backend. The terminal is taken over on the first
// call to Screens.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{
		rate:   DefaultRefreshRate,
		logger: nopLogger{},
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("term: %w", err)
		}
		b.screen = s
	}
	return b, nil
}

func (b *Backend) init() error {
	b.initOnce.Do(func() {
		if err := b.screen.Init(); err != nil {
			b.initErr = fmt.Errorf("term: init terminal: %w", err)
			return
		}
		b.screen.HideCursor()
		b.screen.EnableMouse()
		b.ready = true
	})
	return b.initErr
}

// Name implements core.Backend.
func (b *Backend) Name() string { return Name }

// Screens implements core.Backend. The whole terminal is one screen.
func (b *Backend) Screens() ([]core.ScreenInfo, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	w, h := b.screen.Size()
	return []core.ScreenInfo{{
		Name:        "terminal",
		Bounds:      damage.Rect{Width: w, Height: h},
		RefreshRate: b.rate,
	}}, nil
}

// Start implements core.Backend. Terminal events are read on a separate
// goroutine until Close.
func (b *Backend) Start(sink core.EventSink) error {
	if err := b.init(); err != nil {
		return err
	}
	if b.sink != nil {
		return errors.New("term: already started")
	}
	w, h := b.screen.Size()
	b.sink = sink
	b.clients = newClients(sink, damage.Rect{Width: w, Height: h})
	go b.readEvents()
	return nil
}

// Renderer implements core.Backend.
func (b *Backend) Renderer(i int) core.Renderer {
	if i != 0 {
		return nil
	}
	return &Renderer{screen: b.screen}
}

// Close implements core.Backend and restores the terminal.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if !b.ready {
		return nil
	}
	b.screen.Fini()
	if b.sink != nil {
		<-b.done
	}
	return nil
}

func (b *Backend) readEvents() {
	defer close(b.done)
	for {
		ev := b.screen.PollEvent()
		if ev == nil {
			return
		}
		b.handle(ev)
	}
}

func (b *Backend) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		w, h := ev.Size()
		bounds := damage.Rect{Width: w, Height: h}
		b.logger.Debug("terminal resized to %dx%d", w, h)
		b.clients.resize(bounds)
		b.sink(core.Event{
			Type:    core.EventOutputChange,
			Rect:    bounds,
			Outputs: []core.Output{{Name: "terminal", Rect: bounds}},
		})
	case *tcell.EventKey:
		if b.key(ev) {
			return
		}
		b.sink(core.Event{
			Type:   core.EventKey,
			Window: b.clients.focused,
			Detail: uint32(ev.Key()),
			State:  uint32(ev.Modifiers()),
			Name:   string(ev.Rune()),
		})
	case *tcell.EventMouse:
		x, y := ev.Position()
		if ev.Buttons()&tcell.Button1 != 0 {
			b.clients.focusAt(x, y)
		}
		b.sink(core.Event{
			Type:   core.EventButton,
			Window: b.clients.at(x, y),
			X:      x,
			Y:      y,
			Detail: uint32(ev.Buttons()),
		})
	}
}

// key applies the window management bindings and reports whether the key
// was consumed.
func (b *Backend) key(ev *tcell.EventKey) bool {
	c := b.clients
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		if b.quit != nil {
			b.quit()
		}
		return true
	case tcell.KeyTab:
		c.cycleFocus()
		return true
	case tcell.KeyUp:
		c.nudge(0, -1, ev.Modifiers()&tcell.ModShift != 0)
		return true
	case tcell.KeyDown:
		c.nudge(0, 1, ev.Modifiers()&tcell.ModShift != 0)
		return true
	case tcell.KeyLeft:
		c.nudge(-1, 0, ev.Modifiers()&tcell.ModShift != 0)
		return true
	case tcell.KeyRight:
		c.nudge(1, 0, ev.Modifiers()&tcell.ModShift != 0)
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'n':
			c.spawn()
			return true
		case 'x':
			c.destroyFocused()
			return true
		case 'o':
			c.toggleOpacity()
			return true
		case 'r':
			c.raiseFocused()
			return true
		}
	}
	return false
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
