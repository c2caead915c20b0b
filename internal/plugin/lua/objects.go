package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

// registerTypes builds the metatables of screen and window userdata.
func (s *Script) registerTypes() {
	L := s.state.L

	screenMethods := map[string]*lua.LFunction{
		"windows": L.NewFunction(s.screenWindows),
		"damage":  L.NewFunction(s.damage),
	}
	s.screenMeta = L.NewTypeMetatable("wm.screen")
	L.SetField(s.screenMeta, "__index", L.NewFunction(func(L *lua.LState) int {
		sc := s.checkScreen(L, 1)
		key := L.CheckString(2)
		if m, ok := screenMethods[key]; ok {
			L.Push(m)
			return 1
		}
		L.Push(screenField(sc, key))
		return 1
	}))
	L.SetField(s.screenMeta, "__tostring", L.NewFunction(objectString))

	windowMethods := map[string]*lua.LFunction{
		"damage":         L.NewFunction(s.damage),
		"set_opacity":    L.NewFunction(s.setAttrib((*core.Window).SetOpacity)),
		"set_brightness": L.NewFunction(s.setAttrib((*core.Window).SetBrightness)),
		"set_saturation": L.NewFunction(s.setAttrib((*core.Window).SetSaturation)),
	}
	s.windowMeta = L.NewTypeMetatable("wm.window")
	L.SetField(s.windowMeta, "__index", L.NewFunction(func(L *lua.LState) int {
		w := s.checkWindow(L, 1)
		key := L.CheckString(2)
		if m, ok := windowMethods[key]; ok {
			L.Push(m)
			return 1
		}
		if key == "screen" {
			L.Push(s.push(L, w.Screen()))
			return 1
		}
		L.Push(windowField(w, key))
		return 1
	}))
	L.SetField(s.windowMeta, "__tostring", L.NewFunction(objectString))
}

func objectString(L *lua.LState) int {
	ud := L.CheckUserData(1)
	L.Push(lua.LString(fmt.Sprint(ud.Value)))
	return 1
}

func screenField(sc *core.Screen, key string) lua.LValue {
	b := sc.Bounds()
	switch key {
	case "index":
		return lua.LNumber(sc.Index())
	case "name":
		return lua.LString(sc.Name())
	case "x":
		return lua.LNumber(b.X)
	case "y":
		return lua.LNumber(b.Y)
	case "width":
		return lua.LNumber(b.Width)
	case "height":
		return lua.LNumber(b.Height)
	case "refresh_rate":
		return lua.LNumber(sc.Pacer().RefreshRate())
	case "outputs":
		return lua.LNumber(len(sc.Outputs()))
	}
	return lua.LNil
}

func windowField(w *core.Window, key string) lua.LValue {
	r := w.Rect()
	switch key {
	case "id":
		return lua.LNumber(w.ID())
	case "x":
		return lua.LNumber(r.X)
	case "y":
		return lua.LNumber(r.Y)
	case "width":
		return lua.LNumber(r.Width)
	case "height":
		return lua.LNumber(r.Height)
	case "mapped":
		return lua.LBool(w.Mapped())
	case "visible":
		return lua.LBool(w.Visible())
	case "focused":
		return lua.LBool(w.Focused())
	case "grabbed":
		return lua.LBool(w.Grabbed())
	case "destroyed":
		return lua.LBool(w.Destroyed())
	case "override_redirect":
		return lua.LBool(w.OverrideRedirect())
	case "opacity":
		return lua.LNumber(w.Opacity())
	case "brightness":
		return lua.LNumber(w.Brightness())
	case "saturation":
		return lua.LNumber(w.Saturation())
	}
	return lua.LNil
}

// push converts obj to its userdata. It may run outside a protected call,
// so a failure is logged and yields nil rather than a Lua error.
func (s *Script) push(_ *lua.LState, obj core.Object) lua.LValue {
	if obj == nil {
		return lua.LNil
	}
	ud, err := s.userdata(obj)
	if err != nil {
		s.logger.Error("plugin %s: %s: %v", s.name, obj, err)
		return lua.LNil
	}
	return ud
}

func (s *Script) checkObject(L *lua.LState, n int) core.Object {
	ud := L.CheckUserData(n)
	obj, ok := ud.Value.(core.Object)
	if !ok {
		L.ArgError(n, "screen or window expected")
	}
	return obj
}

func (s *Script) checkScreen(L *lua.LState, n int) *core.Screen {
	sc, ok := s.checkObject(L, n).(*core.Screen)
	if !ok {
		L.ArgError(n, "screen expected")
	}
	return sc
}

func (s *Script) checkWindow(L *lua.LState, n int) *core.Window {
	w, ok := s.checkObject(L, n).(*core.Window)
	if !ok {
		L.ArgError(n, "window expected")
	}
	return w
}

// optRect reads x, y, width, height starting at argument n. ok is false
// when they are absent.
func optRect(L *lua.LState, n int) (r damage.Rect, ok bool) {
	if L.GetTop() < n {
		return r, false
	}
	return damage.Rect{
		X:      L.CheckInt(n),
		Y:      L.CheckInt(n + 1),
		Width:  L.CheckInt(n + 2),
		Height: L.CheckInt(n + 3),
	}, true
}

func (s *Script) screenWindows(L *lua.LState) int {
	sc := s.checkScreen(L, 1)
	t := L.NewTable()
	for _, w := range sc.Windows() {
		t.Append(s.push(L, w))
	}
	L.Push(t)
	return 1
}

// setAttrib makes a window method that sets one paint attribute, clamped
// to 0..0xffff.
func (s *Script) setAttrib(set func(*core.Window, uint16)) lua.LGFunction {
	return func(L *lua.LState) int {
		w := s.checkWindow(L, 1)
		if w.Destroyed() {
			L.RaiseError("%s is destroyed", w)
		}
		v := min(max(L.CheckInt(2), 0), int(core.OpaqueValue))
		set(w, uint16(v))
		return 0
	}
}
