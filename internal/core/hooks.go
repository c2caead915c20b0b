package core

import (
	"time"

	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// Void is the argument or result of operations that have none.
type Void = wrap.Void

// Object is implemented by Core, Display, Screen and Window.
type Object interface {
	privates.Holder
	Kind() privates.Kind
	// Interceptions returns the object's chains by name.
	Interceptions() *wrap.Set
	String() string
}

// ObjectArgs is passed to ObjectAdd and ObjectRemove.
type ObjectArgs struct {
	Parent Object
	Object Object
}

// CoreHooks are the operations of the Core that plugins may wrap.
type CoreHooks struct {
	ObjectAdd    *wrap.Chain[ObjectArgs, Void]
	ObjectRemove *wrap.Chain[ObjectArgs, Void]
}

// DisplayHooks are the operations of the Display that plugins may wrap.
type DisplayHooks struct {
	HandleEvent *wrap.Chain[Event, Void]
}

// PaintMask qualifies a paint pass.
type PaintMask uint32

const (
	// PaintRegion repaints only the damaged rectangles.
	PaintRegion PaintMask = 1 << iota
	// PaintFull repaints the whole screen.
	PaintFull
	// PaintTransformed is set by plugins that move or scale what they draw.
	PaintTransformed
)

// PaintScreenArgs is passed to PaintScreen.
type PaintScreenArgs struct {
	Region []damage.Rect
	Mask   PaintMask
}

// PaintOutputArgs is passed to PaintOutput.
type PaintOutputArgs struct {
	Output Output
	Region []damage.Rect
	Mask   PaintMask
}

// OpaqueValue is the value of an untouched opacity, brightness or
// saturation.
const OpaqueValue uint16 = 0xffff

// WindowPaintAttrib controls how a window is drawn in one pass.
type WindowPaintAttrib struct {
	Opacity    uint16
	Brightness uint16
	Saturation uint16
	XOffset    int
	YOffset    int
}

// PaintWindowArgs is passed to PaintWindow.
type PaintWindowArgs struct {
	Window *Window
	Attrib WindowPaintAttrib
	Region []damage.Rect
	Mask   PaintMask
}

// DamageWindowRectArgs is passed to DamageWindowRect. Rect is relative to
// the window. Initial is set for the damage of a window becoming visible.
type DamageWindowRectArgs struct {
	Window  *Window
	Initial bool
	Rect    damage.Rect
}

// WindowResizeArgs is passed to WindowResizeNotify.
type WindowResizeArgs struct {
	Window  *Window
	DX, DY  int
	DWidth  int
	DHeight int
}

// WindowMoveArgs is passed to WindowMoveNotify.
type WindowMoveArgs struct {
	Window    *Window
	DX, DY    int
	Immediate bool
}

// WindowGrabArgs is passed to WindowGrabNotify.
type WindowGrabArgs struct {
	Window *Window
	X, Y   int
	State  uint32
	Mask   uint32
}

// ScreenHooks are the operations of a Screen that plugins may wrap.
type ScreenHooks struct {
	// PreparePaint receives the time elapsed since the previous frame.
	PreparePaint *wrap.Chain[time.Duration, Void]
	PaintScreen  *wrap.Chain[PaintScreenArgs, bool]
	PaintOutput  *wrap.Chain[PaintOutputArgs, bool]
	PaintWindow  *wrap.Chain[PaintWindowArgs, bool]
	DonePaint    *wrap.Chain[Void, Void]

	// DamageWindowRect returns true when it handled the damage itself.
	DamageWindowRect *wrap.Chain[DamageWindowRectArgs, bool]

	WindowAddNotify    *wrap.Chain[*Window, Void]
	WindowResizeNotify *wrap.Chain[WindowResizeArgs, Void]
	WindowMoveNotify   *wrap.Chain[WindowMoveArgs, Void]
	WindowGrabNotify   *wrap.Chain[WindowGrabArgs, Void]
	WindowUngrabNotify *wrap.Chain[*Window, Void]
	OutputChangeNotify *wrap.Chain[Void, Void]
}

// Chain names, as used by Interceptions and by script plugins.
const (
	HookObjectAdd          = "ObjectAdd"
	HookObjectRemove       = "ObjectRemove"
	HookHandleEvent        = "HandleEvent"
	HookPreparePaint       = "PreparePaint"
	HookPaintScreen        = "PaintScreen"
	HookPaintOutput        = "PaintOutput"
	HookPaintWindow        = "PaintWindow"
	HookDonePaint          = "DonePaint"
	HookDamageWindowRect   = "DamageWindowRect"
	HookWindowAddNotify    = "WindowAddNotify"
	HookWindowResizeNotify = "WindowResizeNotify"
	HookWindowMoveNotify   = "WindowMoveNotify"
	HookWindowGrabNotify   = "WindowGrabNotify"
	HookWindowUngrabNotify = "WindowUngrabNotify"
	HookOutputChangeNotify = "OutputChangeNotify"
)

func voidBase[A any](A) Void { return Void{} }

func newCoreHooks() (CoreHooks, *wrap.Set) {
	h := CoreHooks{
		ObjectAdd:    wrap.New(HookObjectAdd, voidBase[ObjectArgs]),
		ObjectRemove: wrap.New(HookObjectRemove, voidBase[ObjectArgs]),
	}
	set := wrap.NewSet()
	set.Add(h.ObjectAdd)
	set.Add(h.ObjectRemove)
	return h, set
}

func newDisplayHooks(d *Display) (DisplayHooks, *wrap.Set) {
	h := DisplayHooks{
		HandleEvent: wrap.New(HookHandleEvent, d.handleEvent),
	}
	set := wrap.NewSet()
	set.Add(h.HandleEvent)
	return h, set
}

func newScreenHooks(s *Screen) (ScreenHooks, *wrap.Set) {
	h := ScreenHooks{
		PreparePaint:       wrap.New(HookPreparePaint, voidBase[time.Duration]),
		PaintScreen:        wrap.New(HookPaintScreen, s.paintScreen),
		PaintOutput:        wrap.New(HookPaintOutput, s.paintOutput),
		PaintWindow:        wrap.New(HookPaintWindow, s.paintWindow),
		DonePaint:          wrap.New(HookDonePaint, voidBase[Void]),
		DamageWindowRect:   wrap.New(HookDamageWindowRect, func(DamageWindowRectArgs) bool { return false }),
		WindowAddNotify:    wrap.New(HookWindowAddNotify, voidBase[*Window]),
		WindowResizeNotify: wrap.New(HookWindowResizeNotify, voidBase[WindowResizeArgs]),
		WindowMoveNotify:   wrap.New(HookWindowMoveNotify, voidBase[WindowMoveArgs]),
		WindowGrabNotify:   wrap.New(HookWindowGrabNotify, voidBase[WindowGrabArgs]),
		WindowUngrabNotify: wrap.New(HookWindowUngrabNotify, voidBase[*Window]),
		OutputChangeNotify: wrap.New(HookOutputChangeNotify, voidBase[Void]),
	}
	set := wrap.NewSet()
	set.Add(h.PreparePaint)
	set.Add(h.PaintScreen)
	set.Add(h.PaintOutput)
	set.Add(h.PaintWindow)
	set.Add(h.DonePaint)
	set.Add(h.DamageWindowRect)
	set.Add(h.WindowAddNotify)
	set.Add(h.WindowResizeNotify)
	set.Add(h.WindowMoveNotify)
	set.Add(h.WindowGrabNotify)
	set.Add(h.WindowUngrabNotify)
	set.Add(h.OutputChangeNotify)
	return h, set
}
