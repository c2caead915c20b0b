// Package lua runs window manager plugins written in Lua.
//
// A script plugin is a Lua file executed in a sandboxed gopher-lua state.
// LoadScript runs the file, calls its global setup(config) function if it
// has one, and returns a Script whose VTable the core activates like any
// other plugin. The lifecycle functions a script may define are:
//
//	init()                   fini()
//	init_screen(screen)      fini_screen(screen)
//	init_window(window)      fini_window(window)
//
// # The wm module
//
// Scripts reach the window manager through require("wm"):
//
//	local wm = require("wm")
//
//	function init_screen(s)
//	    wm.wrap(s, "PaintWindow", function(args, next)
//	        if not args.window.focused then
//	            args.brightness = 0xa000
//	        end
//	        return next(args)
//	    end)
//	end
//
//	wm.timeout(1000, 1200, function()
//	    wm.log("tick")
//	    return true -- keep firing
//	end)
//
// The module provides:
//   - wm.timeout(min_ms, max_ms, fn) and wm.remove_timeout(handle)
//   - wm.wrap(screen, op, fn) and wm.unwrap(handle)
//   - wm.damage(object [, x, y, width, height])
//   - wm.private(object), a table kept for the script on each object
//   - wm.screens(), wm.active_window(), wm.now()
//   - wm.log, wm.debug, wm.warn, wm.error
//
// Screens and windows are userdata. Their fields (width, focused,
// opacity, ...) are read-only; windows also have set_opacity,
// set_brightness, set_saturation and damage methods.
//
// Everything a script installs is owned by it: when the plugin is
// deactivated its timers, wraps and private slots are removed.
//
// # Sandbox
//
// Only the base, table, string, math and package libraries are opened.
// dofile, loadfile, load and loadstring are removed, require only loads
// the standard modules and wm, and print goes to the plugin's logger.
// Every call into Lua runs under the execution timeout.
//
// A State, and so a Script, must only be used from the event loop
// goroutine.
package lua
