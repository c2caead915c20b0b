// Package config loads the window manager configuration.
//
// Settings come from four layers; each overrides the ones above it:
//
//	defaults      built into Default
//	file          $XDG_CONFIG_HOME/stormwm/config.toml, or -config
//	environment   STORMWM_* variables
//	arguments     command-line flags
//
// The file is TOML and may pull in other files with a top-level @include
// key holding a path or a list of paths:
//
//	"@include" = ["plugins.toml"]
//
//	[display]
//	backend = "x11"
//	refresh_rate = 0          # detect
//	sync_to_vblank = true
//
//	[plugins]
//	active = ["fps", "dim"]
//	hot_reload = true
//
//	[plugin.wobble]           # overrides the plugin's manifest config
//	friction = 3
//
//	[log]
//	level = "info"
//
// Unknown keys and values of the wrong type are errors, so a typo in the
// file is reported instead of silently ignored.
//
// # Sub-packages
//
//   - layer: the layer stack, deep merge and change diffs
//   - loader: TOML files with includes, and environment variables
//   - watcher: fsnotify-based change events for hot reload
//
// # Usage
//
//	l := config.NewLoader(config.WithPath(path))
//	cfg, err := l.Load()
//	...
//	// after the watcher reports a change:
//	cfg, diff, err := l.Reload()
//	if diff.Changed("plugins.active") { ... }
package config
