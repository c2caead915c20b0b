package lua

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/wrap"
)

// codec moves one operation's arguments and result across the Lua
// boundary. update is nil for operations whose arguments a link cannot
// change.
type codec[A, R any] struct {
	args   func(L *lua.LState, a A) lua.LValue
	update func(lv lua.LValue, a A) A
	result func(r R) lua.LValue
	parse  func(lv lua.LValue) (R, bool)
}

var voidResult = struct {
	result func(core.Void) lua.LValue
	parse  func(lua.LValue) (core.Void, bool)
}{
	result: func(core.Void) lua.LValue { return lua.LNil },
	parse:  func(lua.LValue) (core.Void, bool) { return core.Void{}, true },
}

func boolResult(r bool) lua.LValue { return lua.LBool(r) }

func parseBool(lv lua.LValue) (bool, bool) {
	if lv == lua.LNil {
		return false, false
	}
	return lua.LVAsBool(lv), true
}

// link turns fn into an interception. A link whose Lua code fails is
// reported once and then behaves as if fn had only called next. A link
// that returns nothing returns whatever next returned.
func link[A, R any](s *Script, op string, fn *lua.LFunction, c codec[A, R]) wrap.Func[A, R] {
	reported := false
	return func(args A, next wrap.Next[A, R]) R {
		L := s.state.L
		var (
			called bool
			out    R
		)
		nextFn := L.NewFunction(func(L *lua.LState) int {
			a := args
			if c.update != nil && L.GetTop() > 0 {
				a = c.update(L.Get(1), args)
			}
			called = true
			out = next(a)
			L.Push(c.result(out))
			return 1
		})

		res, err := s.state.Call(fn, 1, c.args(L, args), nextFn)
		if err != nil {
			if !reported {
				s.logger.Error("plugin %s: %s: %v", s.name, op, err)
				reported = true
			}
			if called {
				return out
			}
			return next(args)
		}
		if r, ok := c.parse(res[0]); ok {
			return r
		}
		return out
	}
}

// install adds fn to the chain called op on sc.
func (s *Script) install(sc *core.Screen, op string, fn *lua.LFunction) (wrap.Handle, error) {
	h := &sc.Hooks
	switch op {
	case core.HookPreparePaint:
		return h.PreparePaint.Install(s.name, link(s, op, fn, codec[time.Duration, core.Void]{
			args:   func(_ *lua.LState, d time.Duration) lua.LValue { return lua.LNumber(float64(d) / float64(time.Millisecond)) },
			result: voidResult.result,
			parse:  voidResult.parse,
		})), nil

	case core.HookPaintScreen:
		return h.PaintScreen.Install(s.name, link(s, op, fn, codec[core.PaintScreenArgs, bool]{
			args: func(L *lua.LState, a core.PaintScreenArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("mask", lua.LNumber(a.Mask))
				t.RawSetString("region", regionTable(L, a.Region))
				return t
			},
			update: func(lv lua.LValue, a core.PaintScreenArgs) core.PaintScreenArgs {
				a.Mask = core.PaintMask(intField(lv, "mask", int(a.Mask)))
				return a
			},
			result: boolResult,
			parse:  parseBool,
		})), nil

	case core.HookPaintOutput:
		return h.PaintOutput.Install(s.name, link(s, op, fn, codec[core.PaintOutputArgs, bool]{
			args: func(L *lua.LState, a core.PaintOutputArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("output", lua.LString(a.Output.Name))
				setRect(t, a.Output.Rect)
				t.RawSetString("mask", lua.LNumber(a.Mask))
				t.RawSetString("region", regionTable(L, a.Region))
				return t
			},
			update: func(lv lua.LValue, a core.PaintOutputArgs) core.PaintOutputArgs {
				a.Mask = core.PaintMask(intField(lv, "mask", int(a.Mask)))
				return a
			},
			result: boolResult,
			parse:  parseBool,
		})), nil

	case core.HookPaintWindow:
		return h.PaintWindow.Install(s.name, link(s, op, fn, codec[core.PaintWindowArgs, bool]{
			args: func(L *lua.LState, a core.PaintWindowArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("window", s.push(L, a.Window))
				t.RawSetString("opacity", lua.LNumber(a.Attrib.Opacity))
				t.RawSetString("brightness", lua.LNumber(a.Attrib.Brightness))
				t.RawSetString("saturation", lua.LNumber(a.Attrib.Saturation))
				t.RawSetString("x_offset", lua.LNumber(a.Attrib.XOffset))
				t.RawSetString("y_offset", lua.LNumber(a.Attrib.YOffset))
				t.RawSetString("mask", lua.LNumber(a.Mask))
				t.RawSetString("region", regionTable(L, a.Region))
				return t
			},
			update: func(lv lua.LValue, a core.PaintWindowArgs) core.PaintWindowArgs {
				a.Attrib.Opacity = attribField(lv, "opacity", a.Attrib.Opacity)
				a.Attrib.Brightness = attribField(lv, "brightness", a.Attrib.Brightness)
				a.Attrib.Saturation = attribField(lv, "saturation", a.Attrib.Saturation)
				a.Attrib.XOffset = intField(lv, "x_offset", a.Attrib.XOffset)
				a.Attrib.YOffset = intField(lv, "y_offset", a.Attrib.YOffset)
				a.Mask = core.PaintMask(intField(lv, "mask", int(a.Mask)))
				return a
			},
			result: boolResult,
			parse:  parseBool,
		})), nil

	case core.HookDonePaint:
		return h.DonePaint.Install(s.name, link(s, op, fn, codec[core.Void, core.Void]{
			args:   func(*lua.LState, core.Void) lua.LValue { return lua.LNil },
			result: voidResult.result,
			parse:  voidResult.parse,
		})), nil

	case core.HookDamageWindowRect:
		return h.DamageWindowRect.Install(s.name, link(s, op, fn, codec[core.DamageWindowRectArgs, bool]{
			args: func(L *lua.LState, a core.DamageWindowRectArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("window", s.push(L, a.Window))
				t.RawSetString("initial", lua.LBool(a.Initial))
				setRect(t, a.Rect)
				return t
			},
			update: func(lv lua.LValue, a core.DamageWindowRectArgs) core.DamageWindowRectArgs {
				a.Rect = damage.Rect{
					X:      intField(lv, "x", a.Rect.X),
					Y:      intField(lv, "y", a.Rect.Y),
					Width:  intField(lv, "width", a.Rect.Width),
					Height: intField(lv, "height", a.Rect.Height),
				}
				return a
			},
			result: boolResult,
			parse:  parseBool,
		})), nil

	case core.HookWindowAddNotify:
		return h.WindowAddNotify.Install(s.name, link(s, op, fn, windowCodec(s))), nil

	case core.HookWindowUngrabNotify:
		return h.WindowUngrabNotify.Install(s.name, link(s, op, fn, windowCodec(s))), nil

	case core.HookWindowMoveNotify:
		return h.WindowMoveNotify.Install(s.name, link(s, op, fn, codec[core.WindowMoveArgs, core.Void]{
			args: func(L *lua.LState, a core.WindowMoveArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("window", s.push(L, a.Window))
				t.RawSetString("dx", lua.LNumber(a.DX))
				t.RawSetString("dy", lua.LNumber(a.DY))
				t.RawSetString("immediate", lua.LBool(a.Immediate))
				return t
			},
			result: voidResult.result,
			parse:  voidResult.parse,
		})), nil

	case core.HookWindowResizeNotify:
		return h.WindowResizeNotify.Install(s.name, link(s, op, fn, codec[core.WindowResizeArgs, core.Void]{
			args: func(L *lua.LState, a core.WindowResizeArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("window", s.push(L, a.Window))
				t.RawSetString("dx", lua.LNumber(a.DX))
				t.RawSetString("dy", lua.LNumber(a.DY))
				t.RawSetString("dwidth", lua.LNumber(a.DWidth))
				t.RawSetString("dheight", lua.LNumber(a.DHeight))
				return t
			},
			result: voidResult.result,
			parse:  voidResult.parse,
		})), nil

	case core.HookWindowGrabNotify:
		return h.WindowGrabNotify.Install(s.name, link(s, op, fn, codec[core.WindowGrabArgs, core.Void]{
			args: func(L *lua.LState, a core.WindowGrabArgs) lua.LValue {
				t := L.NewTable()
				t.RawSetString("window", s.push(L, a.Window))
				t.RawSetString("x", lua.LNumber(a.X))
				t.RawSetString("y", lua.LNumber(a.Y))
				t.RawSetString("state", lua.LNumber(a.State))
				t.RawSetString("mask", lua.LNumber(a.Mask))
				return t
			},
			result: voidResult.result,
			parse:  voidResult.parse,
		})), nil

	case core.HookOutputChangeNotify:
		return h.OutputChangeNotify.Install(s.name, link(s, op, fn, codec[core.Void, core.Void]{
			args:   func(*lua.LState, core.Void) lua.LValue { return lua.LNil },
			result: voidResult.result,
			parse:  voidResult.parse,
		})), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

func windowCodec(s *Script) codec[*core.Window, core.Void] {
	return codec[*core.Window, core.Void]{
		args:   func(L *lua.LState, w *core.Window) lua.LValue { return s.push(L, w) },
		result: voidResult.result,
		parse:  voidResult.parse,
	}
}

func regionTable(L *lua.LState, region []damage.Rect) *lua.LTable {
	t := L.CreateTable(len(region), 0)
	for _, r := range region {
		rt := L.CreateTable(0, 4)
		setRect(rt, r)
		t.Append(rt)
	}
	return t
}

func setRect(t *lua.LTable, r damage.Rect) {
	t.RawSetString("x", lua.LNumber(r.X))
	t.RawSetString("y", lua.LNumber(r.Y))
	t.RawSetString("width", lua.LNumber(r.Width))
	t.RawSetString("height", lua.LNumber(r.Height))
}

// intField reads key from a table argument, keeping def when the value is
// missing or not a number.
func intField(lv lua.LValue, key string, def int) int {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return def
	}
	n, ok := t.RawGetString(key).(lua.LNumber)
	if !ok {
		return def
	}
	return int(n)
}

func attribField(lv lua.LValue, key string, def uint16) uint16 {
	v := intField(lv, key, int(def))
	return uint16(min(max(v, 0), int(core.OpaqueValue)))
}
