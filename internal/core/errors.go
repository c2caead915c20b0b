package core

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrABIMismatch is returned when a plugin was built for another ABI.
	ErrABIMismatch = errors.New("plugin ABI mismatch")

	// ErrPluginActive is returned when activating a plugin twice.
	ErrPluginActive = errors.New("plugin already active")

	// ErrPluginNotActive is returned when deactivating an unknown plugin.
	ErrPluginNotActive = errors.New("plugin not active")

	// ErrNoScreens is returned when the backend reports nothing to manage.
	ErrNoScreens = errors.New("backend reported no screens")

	// ErrWindowExists is returned when creating a window id that is managed.
	ErrWindowExists = errors.New("window already managed")

	// ErrUnknownScreen is returned for an event naming a missing screen.
	ErrUnknownScreen = errors.New("unknown screen")

	// ErrClosed is returned by Run after the core has been closed.
	ErrClosed = errors.New("core closed")
)

// PluginError wraps a failure of one plugin hook.
type PluginError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PluginError for the same plugin.
func (e *PluginError) Is(target error) bool {
	t, ok := target.(*PluginError)
	if !ok {
		return false
	}
	return t.Plugin == "" || t.Plugin == e.Plugin
}

func pluginErr(plugin, hook string, err error) error {
	return &PluginError{Plugin: plugin, Hook: hook, Err: err}
}
