package lua

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/core"
)

// DefaultExecutionTimeout bounds every call from Go into Lua. A paint hook
// that runs longer than this stalls every screen, so it is kept short.
const DefaultExecutionTimeout = 250 * time.Millisecond

// State wraps a gopher-lua state with the sandbox and call bookkeeping.
//
// gopher-lua's LState is not goroutine-safe and neither is State.
type State struct {
	L *lua.LState

	timeout time.Duration
	logger  core.Logger
	sandbox *Sandbox

	// depth counts calls into Lua in progress; the timeout context is only
	// set by the outermost one.
	depth  int
	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets how long a single call into Lua may run. Zero
// disables the limit.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.timeout = d
	}
}

// WithLogger sets where print and errors go.
func WithLogger(l core.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	s := &State{
		timeout: DefaultExecutionTimeout,
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})
	openSafeLibraries(s.L)

	s.sandbox = NewSandbox(s.L, s.logger)
	if err := s.sandbox.Install(); err != nil {
		s.L.Close()
		return nil, err
	}
	return s, nil
}

// openSafeLibraries opens the libraries scripts may use. io, os and debug
// stay closed.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// enter sets the timeout context for an outermost call and returns the
// function that undoes it.
func (s *State) enter(ctx context.Context) func() {
	s.depth++
	if s.depth > 1 || (ctx == nil && s.timeout <= 0) {
		return func() { s.depth-- }
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	s.L.SetContext(ctx)
	return func() {
		s.L.RemoveContext()
		cancel()
		s.depth--
	}
}

// DoFile runs a Lua file.
func (s *State) DoFile(ctx context.Context, path string) error {
	if s.closed {
		return ErrStateClosed
	}
	defer s.enter(ctx)()
	return recovered(func() error { return s.L.DoFile(path) })
}

// DoString runs a chunk of Lua source.
func (s *State) DoString(ctx context.Context, code string) error {
	if s.closed {
		return ErrStateClosed
	}
	defer s.enter(ctx)()
	return recovered(func() error { return s.L.DoString(code) })
}

func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Call calls fn with args and returns up to nret results; missing results
// are nil.
func (s *State) Call(fn lua.LValue, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: got %s", ErrNotFunction, fn.Type())
	}
	defer s.enter(nil)()

	err := recovered(func() error {
		return s.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...)
	})
	if err != nil {
		return nil, err
	}

	results := make([]lua.LValue, nret)
	for i := range nret {
		results[i] = s.L.Get(-nret + i)
	}
	s.L.Pop(nret)
	return results, nil
}

// Function returns the global function name, or nil when it is not defined
// or not a function.
func (s *State) Function(name string) *lua.LFunction {
	if s.closed {
		return nil
	}
	fn, _ := s.L.GetGlobal(name).(*lua.LFunction)
	return fn
}

// CallGlobal calls the global function name if the script defines it.
func (s *State) CallGlobal(name string, args ...lua.LValue) error {
	fn := s.Function(name)
	if fn == nil {
		return nil
	}
	if _, err := s.Call(fn, 0, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// PreloadModule makes a module available to require.
func (s *State) PreloadModule(name string, loader lua.LGFunction) {
	s.L.PreloadModule(name, loader)
	s.sandbox.Allow(name)
}

// LuaState returns the underlying gopher-lua state.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// Sandbox returns the sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed reports whether Close was called.
func (s *State) IsClosed() bool {
	return s.closed
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
