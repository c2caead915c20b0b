package lua

import (
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/wrap"
)

// openModule is the loader of require("wm").
func (s *Script) openModule(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"timeout":        s.timeout,
		"remove_timeout": s.removeTimeout,
		"wrap":           s.wrap,
		"unwrap":         s.unwrap,
		"damage":         s.damage,
		"private":        s.privateTable,
		"screens":        s.screens,
		"active_window":  s.activeWindow,
		"now":            s.now,
		"log":            s.log(s.logger.Info),
		"debug":          s.log(s.logger.Debug),
		"warn":           s.log(s.logger.Warn),
		"error":          s.log(s.logger.Error),
	})
	L.SetField(mod, "OPAQUE", lua.LNumber(core.OpaqueValue))
	L.SetField(mod, "ABI", lua.LNumber(core.ABIVersion))
	L.Push(mod)
	return 1
}

func millis(v lua.LNumber) time.Duration {
	return time.Duration(float64(v) * float64(time.Millisecond))
}

// timeout implements wm.timeout(min_ms, max_ms, fn) and wm.timeout(ms, fn).
// fn keeps firing for as long as it returns true.
func (s *Script) timeout(L *lua.LState) int {
	minMs := L.CheckNumber(1)
	maxMs := minMs
	fnArg := 2
	if L.Get(2).Type() != lua.LTFunction {
		maxMs = L.CheckNumber(2)
		fnArg = 3
	}
	t := &timer{fn: L.CheckFunction(fnArg)}

	h, err := s.core.Scheduler().AddTimeout(millis(minMs), millis(maxMs), s.fire, t)
	if err != nil {
		L.RaiseError("wm.timeout: %v", err)
		return 0
	}
	t.handle = h
	s.timers[h] = t
	L.Push(lua.LNumber(h))
	return 1
}

func (s *Script) removeTimeout(L *lua.LState) int {
	h := loop.Handle(L.CheckInt64(1))
	if _, ok := s.timers[h]; !ok {
		L.Push(lua.LFalse)
		return 1
	}
	delete(s.timers, h)
	_, ok := s.core.Scheduler().RemoveTimeout(h)
	L.Push(lua.LBool(ok))
	return 1
}

// wrap implements wm.wrap(screen, op, fn). fn receives the operation's
// arguments and a next function, and returns what next returned.
func (s *Script) wrap(L *lua.LState) int {
	sc := s.checkScreen(L, 1)
	op := L.CheckString(2)
	fn := L.CheckFunction(3)

	h, err := s.install(sc, op, fn)
	if err != nil {
		L.RaiseError("wm.wrap: %v", err)
		return 0
	}
	s.wraps[h] = sc.Interceptions()
	L.Push(lua.LNumber(h))
	return 1
}

func (s *Script) unwrap(L *lua.LState) int {
	h := wrap.Handle(L.CheckInt64(1))
	set, ok := s.wraps[h]
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	delete(s.wraps, h)
	L.Push(lua.LBool(set.Remove(h) == nil))
	return 1
}

// damage implements wm.damage(object [, x, y, width, height]) and the
// damage method of screens and windows. Window rectangles are relative to
// the window.
func (s *Script) damage(L *lua.LState) int {
	obj := s.checkObject(L, 1)
	r, hasRect := optRect(L, 2)
	switch o := obj.(type) {
	case *core.Screen:
		if hasRect {
			o.DamageRegion(r)
		} else {
			o.DamageScreen()
		}
	case *core.Window:
		if o.Destroyed() {
			return 0
		}
		if hasRect {
			o.DamageRect(r, false)
		} else {
			o.Damage()
		}
	}
	return 0
}

// privateTable implements wm.private([object]). Without an object it
// returns the script's table on the core.
func (s *Script) privateTable(L *lua.LState) int {
	var obj core.Object = s.core
	if L.GetTop() > 0 {
		obj = s.checkObject(L, 1)
	}
	t, err := s.private(obj)
	if err != nil {
		L.RaiseError("wm.private: %v", err)
		return 0
	}
	L.Push(t)
	return 1
}

func (s *Script) screens(L *lua.LState) int {
	t := L.NewTable()
	for _, sc := range s.core.Display().Screens() {
		t.Append(s.push(L, sc))
	}
	L.Push(t)
	return 1
}

func (s *Script) activeWindow(L *lua.LState) int {
	w := s.core.Display().ActiveWindow()
	if w == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(s.push(L, w))
	return 1
}

// now returns the loop clock in milliseconds.
func (s *Script) now(L *lua.LState) int {
	L.Push(lua.LNumber(float64(s.core.Clock().Now().UnixNano()) / float64(time.Millisecond)))
	return 1
}

func (s *Script) log(logf func(string, ...any)) lua.LGFunction {
	return func(L *lua.LState) int {
		logf("[%s] %s", s.name, strings.Join(formatArgs(L, 1), " "))
		return 0
	}
}
