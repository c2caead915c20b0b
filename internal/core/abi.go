package core

// ABIVersion is bumped whenever the hook surface or the vtable changes in a
// way that breaks existing plugins.
const ABIVersion = 20240601

// PluginVTable is the entry point of a plugin.
//
// Every function is optional. Init hooks that return an error abort
// activation; anything already initialized is finalized again in reverse
// order.
type PluginVTable struct {
	Name string
	ABI  int

	Init func(c *Core) error
	Fini func(c *Core)

	InitCore func(c *Core) error
	FiniCore func(c *Core)

	InitDisplay func(d *Display) error
	FiniDisplay func(d *Display)

	InitScreen func(s *Screen) error
	FiniScreen func(s *Screen)

	InitWindow func(w *Window) error
	FiniWindow func(w *Window)
}
