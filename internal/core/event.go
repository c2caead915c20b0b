package core

import (
	"fmt"

	"github.com/dshills/stormwm/internal/damage"
)

// WindowID is the backend's identifier for a top-level window.
type WindowID uint32

// EventType identifies a display event.
type EventType uint8

const (
	EventNone EventType = iota
	// EventCreateWindow adds Window with geometry Rect to Screen.
	EventCreateWindow
	// EventDestroyWindow removes Window.
	EventDestroyWindow
	EventMapWindow
	EventUnmapWindow
	// EventConfigureWindow moves or resizes Window to Rect. When Restack is
	// set the window is also placed directly above Above (zero for bottom).
	EventConfigureWindow
	// EventDamage reports that Rect, relative to Window, changed.
	EventDamage
	// EventExpose asks for Rect of Screen to be repainted.
	EventExpose
	// EventFocus gives input focus to Window.
	EventFocus
	EventGrab
	EventUngrab
	// EventOutputChange replaces the outputs of Screen; Rect is the new
	// screen size when not empty.
	EventOutputChange
	// EventError reports a protocol error; Detail carries the error code.
	EventError
	// EventKey and EventButton carry input for plugins; the core ignores them.
	EventKey
	EventButton
	// EventProperty reports a changed window property named Name.
	EventProperty
)

var eventNames = map[EventType]string{
	EventNone:            "none",
	EventCreateWindow:    "create",
	EventDestroyWindow:   "destroy",
	EventMapWindow:       "map",
	EventUnmapWindow:     "unmap",
	EventConfigureWindow: "configure",
	EventDamage:          "damage",
	EventExpose:          "expose",
	EventFocus:           "focus",
	EventGrab:            "grab",
	EventUngrab:          "ungrab",
	EventOutputChange:    "output-change",
	EventError:           "error",
	EventKey:             "key",
	EventButton:          "button",
	EventProperty:        "property",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// Output is one monitor output of a screen.
type Output struct {
	Name string
	Rect damage.Rect
}

// Event is a display event translated by a backend.
type Event struct {
	Type   EventType
	Screen int
	Window WindowID
	Rect   damage.Rect

	Above   WindowID
	Restack bool

	// OverrideRedirect marks windows the window manager must not decorate.
	OverrideRedirect bool

	Outputs []Output

	X, Y   int
	Detail uint32
	State  uint32
	Name   string
}

func (e Event) String() string {
	return fmt.Sprintf("%s screen=%d window=%#x rect=%v", e.Type, e.Screen, uint32(e.Window), e.Rect)
}

// EventSink receives events from a backend. It may be called from any
// goroutine.
type EventSink func(Event)
