// Package plugin finds, loads and activates stormwm plugins.
//
// A plugin is either compiled in, registered with Register from an init
// function, or a Lua script found on the plugin search path. Both end up as
// a core.PluginVTable that the Manager activates on the core.
//
// # Quick Start
//
//	mgr := plugin.NewManager(c, plugin.DefaultManagerConfig())
//	defer mgr.Close()
//
//	if err := mgr.Activate(ctx, "fps", "dim", "wobble"); err != nil {
//	    logger.Warn("some plugins failed: %v", err)
//	}
//
// # Plugin Structure
//
// A script plugin is a directory on the search path:
//
//	~/.config/stormwm/plugins/
//	└── wobble/
//	    ├── plugin.yaml    # optional manifest
//	    └── init.lua       # entry point
//
// A lone wobble.lua file on the search path is a plugin too, with a
// minimal manifest derived from its name.
//
// # Manifest
//
// plugin.yaml (or plugin.json) describes the plugin:
//
//	name: wobble
//	version: 1.0.0
//	main: init.lua
//	depends: [fps]
//	load_after: [dim]
//	abi: 20240601
//	config:
//	  amplitude: 4
//
// depends names plugins that must be active first; a plugin whose
// dependency is missing is not activated. load_after only orders plugins
// activated together. abi, when set, must equal core.ABIVersion. config is
// handed to the script's setup function.
//
// # Lifecycle
//
//	Unloaded -> Loaded -> Active
//	               ^        |
//	               +--------+  (Deactivate)
//
// Loading builds the vtable; for scripts it runs the file. Activation runs
// the init hooks for the core, the display, every screen and every window.
// Deactivation runs the fini hooks in reverse and removes every timer and
// interception the plugin left behind. A plugin cannot be deactivated while
// an active plugin depends on it; Reload takes the dependents down and back
// up around the reload.
//
// The script runtime and the wm module are documented in package
// internal/plugin/lua.
package plugin
