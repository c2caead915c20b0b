package lua

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// ScriptConfig describes the script to load.
type ScriptConfig struct {
	// Name owns everything the script installs.
	Name string

	// Path is the file to run. When empty, Source is run instead.
	Path   string
	Source string

	// Config is passed to setup(config).
	Config map[string]any

	Logger  core.Logger
	Timeout time.Duration
}

// Script is a loaded Lua plugin bound to one core.
type Script struct {
	name   string
	core   *core.Core
	state  *State
	logger core.Logger

	timers map[loop.Handle]*timer
	wraps  map[wrap.Handle]*wrap.Set

	// handles caches the userdata of each object so a script sees the same
	// value every time; tables holds the wm.private tables.
	handles [privates.NumKinds]privates.Key[*lua.LUserData]
	tables  [privates.NumKinds]privates.Key[*lua.LTable]

	screenMeta *lua.LTable
	windowMeta *lua.LTable
}

type timer struct {
	fn     *lua.LFunction
	handle loop.Handle
}

// LoadScript runs the script and calls its setup function. Nothing is
// installed on the core until the returned script's vtable is activated,
// except what the script itself does at load time through wm.
func LoadScript(ctx context.Context, c *core.Core, cfg ScriptConfig) (*Script, error) {
	if cfg.Name == "" {
		return nil, errors.New("lua: script has no name")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	opts := []StateOption{WithLogger(logger)}
	if cfg.Timeout != 0 {
		opts = append(opts, WithExecutionTimeout(cfg.Timeout))
	}
	state, err := NewState(opts...)
	if err != nil {
		return nil, err
	}

	s := &Script{
		name:   cfg.Name,
		core:   c,
		state:  state,
		logger: logger,
		timers: make(map[loop.Handle]*timer),
		wraps:  make(map[wrap.Handle]*wrap.Set),
	}
	s.registerTypes()
	state.PreloadModule("wm", s.openModule)

	if cfg.Path != "" {
		err = state.DoFile(ctx, cfg.Path)
	} else {
		err = state.DoString(ctx, cfg.Source)
	}
	if err == nil {
		err = state.CallGlobal("setup", ToLuaValue(state.L, cfg.Config))
	}
	if err != nil {
		s.release()
		_ = state.Close()
		return nil, fmt.Errorf("lua plugin %s: %w", cfg.Name, err)
	}
	return s, nil
}

// Name returns the plugin name.
func (s *Script) Name() string {
	return s.name
}

// State returns the Lua state.
func (s *Script) State() *State {
	return s.state
}

// Timers returns how many timeouts the script has pending.
func (s *Script) Timers() int {
	return len(s.timers)
}

// Wraps returns how many interceptions the script has installed.
func (s *Script) Wraps() int {
	return len(s.wraps)
}

// VTable returns the plugin entry points. Each hook calls the global Lua
// function of the same name when the script defines it.
func (s *Script) VTable() *core.PluginVTable {
	vt := &core.PluginVTable{
		Name: s.name,
		ABI:  core.ABIVersion,
		Init: func(*core.Core) error {
			return s.state.CallGlobal("init")
		},
		Fini: func(*core.Core) {
			if err := s.state.CallGlobal("fini"); err != nil {
				s.logger.Error("plugin %s: %v", s.name, err)
			}
			s.release()
		},
	}
	if s.state.Function("init_screen") != nil || s.state.Function("fini_screen") != nil {
		vt.InitScreen = func(sc *core.Screen) error { return s.callWith("init_screen", sc) }
		vt.FiniScreen = func(sc *core.Screen) { s.finiWith("fini_screen", sc) }
	}
	if s.state.Function("init_window") != nil || s.state.Function("fini_window") != nil {
		vt.InitWindow = func(w *core.Window) error { return s.callWith("init_window", w) }
		vt.FiniWindow = func(w *core.Window) { s.finiWith("fini_window", w) }
	}
	return vt
}

func (s *Script) callWith(fn string, obj core.Object) error {
	if s.state.Function(fn) == nil {
		return nil
	}
	ud, err := s.userdata(obj)
	if err != nil {
		return err
	}
	return s.state.CallGlobal(fn, ud)
}

func (s *Script) finiWith(fn string, obj core.Object) {
	if err := s.callWith(fn, obj); err != nil {
		s.logger.Error("plugin %s: %v", s.name, err)
	}
}

// release removes every timer and interception the script installed and
// frees its private slots.
func (s *Script) release() {
	sched := s.core.Scheduler()
	for h := range s.timers {
		sched.RemoveTimeout(h)
	}
	clear(s.timers)

	for h, set := range s.wraps {
		_ = set.Remove(h)
	}
	clear(s.wraps)

	for kind := range privates.NumKinds {
		if s.handles[kind].Valid() {
			_ = core.ReleaseKey(s.core, &s.handles[kind])
		}
		if s.tables[kind].Valid() {
			_ = core.ReleaseKey(s.core, &s.tables[kind])
		}
	}
}

// Close releases everything and closes the Lua state.
func (s *Script) Close() error {
	if s.state.IsClosed() {
		return nil
	}
	s.release()
	return s.state.Close()
}

// fire runs a wm.timeout callback.
func (s *Script) fire(data any) bool {
	t := data.(*timer)
	if s.state.IsClosed() {
		return false
	}
	res, err := s.state.Call(t.fn, 1)
	if err != nil {
		s.logger.Error("plugin %s: timeout: %v", s.name, err)
		delete(s.timers, t.handle)
		return false
	}
	if !lua.LVAsBool(res[0]) {
		delete(s.timers, t.handle)
		return false
	}
	return true
}

// userdata returns the value representing obj in Lua, creating it once per
// object.
func (s *Script) userdata(obj core.Object) (*lua.LUserData, error) {
	key, err := lazyKey(s.core, &s.handles, obj.Kind())
	if err != nil {
		return nil, err
	}
	if ud, ok := key.Get(obj); ok {
		return ud, nil
	}

	ud := s.state.L.NewUserData()
	ud.Value = obj
	switch obj.(type) {
	case *core.Screen:
		ud.Metatable = s.screenMeta
	case *core.Window:
		ud.Metatable = s.windowMeta
	}
	if err := key.Set(obj, ud); err != nil {
		return nil, err
	}
	return ud, nil
}

// private returns the table the script keeps on obj.
func (s *Script) private(obj core.Object) (*lua.LTable, error) {
	key, err := lazyKey(s.core, &s.tables, obj.Kind())
	if err != nil {
		return nil, err
	}
	if t, ok := key.Get(obj); ok {
		return t, nil
	}
	t := s.state.L.NewTable()
	if err := key.Set(obj, t); err != nil {
		return nil, err
	}
	return t, nil
}

// lazyKey returns the slot for kind in keys, allocating it on first use.
func lazyKey[T any](c *core.Core, keys *[privates.NumKinds]privates.Key[T], kind privates.Kind) (*privates.Key[T], error) {
	k := &keys[kind]
	if k.Valid() {
		return k, nil
	}
	nk, err := core.NewKey[T](c, kind)
	if err != nil {
		return nil, err
	}
	*k = nk
	return k, nil
}
