package term

import (
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// client is a simulated application window.
type client struct {
	id    core.WindowID
	rect  damage.Rect
	faded bool
}

// clients plays the part of the display server's window tree. It is only
// touched by the terminal reader goroutine.
type clients struct {
	sink    core.EventSink
	bounds  damage.Rect
	stack   []*client // bottom first
	next    core.WindowID
	focused core.WindowID
}

func newClients(sink core.EventSink, bounds damage.Rect) *clients {
	return &clients{sink: sink, bounds: bounds, next: 1}
}

func (c *clients) resize(bounds damage.Rect) {
	c.bounds = bounds
}

func (c *clients) find(id core.WindowID) (int, *client) {
	for i, cl := range c.stack {
		if cl.id == id {
			return i, cl
		}
	}
	return -1, nil
}

// at returns the topmost window under x, y, or zero.
func (c *clients) at(x, y int) core.WindowID {
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].rect.Contains(x, y) {
			return c.stack[i].id
		}
	}
	return 0
}

func (c *clients) spawn() core.WindowID {
	w := max(c.bounds.Width/3, 12)
	h := max(c.bounds.Height/3, 5)
	off := (len(c.stack) * 2) % max(c.bounds.Height-h, 1)
	cl := &client{
		id:   c.next,
		rect: damage.Rect{X: 2 + off*2, Y: 1 + off, Width: w, Height: h},
	}
	c.next++
	c.stack = append(c.stack, cl)

	c.sink(core.Event{Type: core.EventCreateWindow, Window: cl.id, Rect: cl.rect})
	c.sink(core.Event{Type: core.EventMapWindow, Window: cl.id})
	c.focus(cl.id)
	return cl.id
}

func (c *clients) focus(id core.WindowID) {
	if id == 0 || id == c.focused {
		return
	}
	c.focused = id
	c.sink(core.Event{Type: core.EventFocus, Window: id})
}

func (c *clients) focusAt(x, y int) {
	c.focus(c.at(x, y))
}

func (c *clients) cycleFocus() {
	if len(c.stack) == 0 {
		return
	}
	i, _ := c.find(c.focused)
	c.focus(c.stack[(i+1)%len(c.stack)].id)
}

// nudge moves the focused window by dx, dy, or grows it when resize is set.
func (c *clients) nudge(dx, dy int, resize bool) {
	_, cl := c.find(c.focused)
	if cl == nil {
		return
	}
	if resize {
		cl.rect.Width = max(cl.rect.Width+dx, 1)
		cl.rect.Height = max(cl.rect.Height+dy, 1)
	} else {
		cl.rect = cl.rect.Translate(dx, dy)
	}
	c.sink(core.Event{Type: core.EventConfigureWindow, Window: cl.id, Rect: cl.rect})
}

func (c *clients) raiseFocused() {
	i, cl := c.find(c.focused)
	if cl == nil || i == len(c.stack)-1 {
		return
	}
	top := c.stack[len(c.stack)-1]
	c.stack = append(c.stack[:i], c.stack[i+1:]...)
	c.stack = append(c.stack, cl)
	c.sink(core.Event{
		Type:    core.EventConfigureWindow,
		Window:  cl.id,
		Rect:    cl.rect,
		Restack: true,
		Above:   top.id,
	})
}

func (c *clients) destroyFocused() {
	i, cl := c.find(c.focused)
	if cl == nil {
		return
	}
	c.stack = append(c.stack[:i], c.stack[i+1:]...)
	c.sink(core.Event{Type: core.EventUnmapWindow, Window: cl.id})
	c.sink(core.Event{Type: core.EventDestroyWindow, Window: cl.id})

	c.focused = 0
	if n := len(c.stack); n > 0 {
		c.focus(c.stack[n-1].id)
	}
}

// toggleOpacity flips the focused window between opaque and half
// transparent through the opacity property, as a client would.
func (c *clients) toggleOpacity() {
	_, cl := c.find(c.focused)
	if cl == nil {
		return
	}
	cl.faded = !cl.faded
	value := uint32(0xffffffff)
	if cl.faded {
		value = 0x80000000
	}
	c.sink(core.Event{Type: core.EventProperty, Window: cl.id, Name: core.PropertyOpacity, Detail: value})
}
