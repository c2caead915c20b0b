package plugin

import "errors"

// Plugin manager errors.
var (
	// ErrPluginNotFound is returned when a plugin is neither builtin nor
	// present on any search path.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoEntryPoint is returned when a plugin directory has no script to run.
	ErrNoEntryPoint = errors.New("plugin has no entry point (init.lua or plugin.lua)")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrAlreadyLoaded is returned when loading a plugin twice.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrNotLoaded is returned when using a plugin that is not loaded.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrDependencyNotFound is returned when a required plugin is neither
	// active nor part of the same activation.
	ErrDependencyNotFound = errors.New("plugin dependency not found")

	// ErrCyclicDependency is returned when plugins depend on each other.
	ErrCyclicDependency = errors.New("cyclic plugin dependency detected")

	// ErrRequired is returned when deactivating a plugin an active plugin
	// depends on.
	ErrRequired = errors.New("plugin is required by an active plugin")
)
