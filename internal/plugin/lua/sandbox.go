package lua

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/core"
)

// Sandbox restricts what a script can reach.
type Sandbox struct {
	L      *lua.LState
	logger core.Logger

	// allowed holds the modules require may load.
	allowed map[string]bool
}

// NewSandbox creates a sandbox for L. Nothing changes until Install.
func NewSandbox(L *lua.LState, logger core.Logger) *Sandbox {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Sandbox{
		L:      L,
		logger: logger,
		allowed: map[string]bool{
			"string": true,
			"table":  true,
			"math":   true,
		},
	}
}

// Install removes the functions that load code from outside the sandbox,
// routes print to the logger and replaces require.
func (s *Sandbox) Install() error {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.L.SetGlobal("print", s.L.NewFunction(s.print))
	return s.installSafeRequire()
}

// print joins its arguments with tabs like the stock print.
func (s *Sandbox) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	s.logger.Info("%s", strings.Join(parts, "\t"))
	return 0
}

// installSafeRequire empties the search paths so nothing loads from disk,
// drops modules loaded outside the allowed set, and wraps require so only
// allowed modules resolve.
func (s *Sandbox) installSafeRequire() error {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return fmt.Errorf("lua: package library not open")
	}
	s.L.SetField(pkg, "path", lua.LString(""))
	s.L.SetField(pkg, "cpath", lua.LString(""))

	if loaded, ok := s.L.GetField(pkg, "loaded").(*lua.LTable); ok {
		var drop []string
		loaded.ForEach(func(k, _ lua.LValue) {
			if name, ok := k.(lua.LString); ok && !s.allowed[string(name)] && name != "_G" && name != "package" {
				drop = append(drop, string(name))
			}
		})
		for _, name := range drop {
			loaded.RawSetString(name, lua.LNil)
		}
	}

	original := s.L.GetGlobal("require")
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !s.allowed[name] {
			L.RaiseError("%v: %q", ErrModuleDenied, name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
	return nil
}

// Allow lets require load name.
func (s *Sandbox) Allow(name string) {
	s.allowed[name] = true
}

// Allowed reports whether require may load name.
func (s *Sandbox) Allowed(name string) bool {
	return s.allowed[name]
}
