// Package core owns the window manager's object graph and drives its event
// loop.
//
// The graph is fixed in shape: one Core owns one Display, the Display owns a
// Screen per managed monitor or root, and each Screen owns its top-level
// Windows in stacking order. Every object carries a private storage table
// (see package privates) so plugins can attach their own state, and a set of
// interception chains (see package wrap) so plugins can wrap its operations.
//
// Plugins are described by a PluginVTable. Activating a plugin runs its init
// hooks over every existing object, core first and windows last; objects
// created later run the init hooks of every active plugin as they appear,
// and destroyed objects run fini hooks in reverse activation order before
// their storage is dropped.
//
// Everything in this package runs on the loop goroutine. Backends deliver
// events from their own goroutines through an EventSink, which hands them to
// the loop.
package core
