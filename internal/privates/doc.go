// Package privates provides per-object private storage for plugins.
//
// Every extensible object (core, display, screen, window) carries a Cells
// table. An Allocator hands out slot indices for one object kind; the same
// index addresses the same logical field on every object of that kind for as
// long as the index stays allocated.
//
// Plugins normally work with a typed Key rather than a raw Index:
//
//	key, err := privates.NewKey[*fpsState](c.Allocator(privates.KindScreen))
//	if err != nil {
//	    return err
//	}
//	key.Set(screen, &fpsState{})
//	state, ok := key.Get(screen)
//
// Allocators are not safe for concurrent use. They are owned by the event
// loop goroutine like every other core object.
package privates
