package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNotFunction is returned when calling a value that is not a function.
	ErrNotFunction = errors.New("lua value is not a function")

	// ErrUnknownOperation is returned by wm.wrap for an operation it cannot
	// wrap.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrModuleDenied is returned by require for modules outside the sandbox.
	ErrModuleDenied = errors.New("module not allowed in sandbox")
)
