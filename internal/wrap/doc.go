// Package wrap provides interception chains for core operations.
//
// Every hookable operation on a core object is a Chain. A chain has a base
// implementation and an ordered list of links installed by plugins. Calling
// the chain runs the most recently installed link first; each link receives
// a next function that continues with the link installed before it, and the
// last step is the base.
//
//	h := screen.Hooks.PaintWindow.Install("dim", func(a core.PaintWindowArgs, next wrap.Next[core.PaintWindowArgs, bool]) bool {
//	    a.Attrib.Opacity /= 2
//	    return next(a)
//	})
//	defer screen.Hooks.PaintWindow.Remove(h)
//
// Links are identified by the Handle returned from Install, so they can be
// removed in any order without disturbing the others. RemoveOwner removes
// every link one plugin installed, newest first.
//
// Chains are not safe for concurrent use. They are owned by the loop
// goroutine like the objects that carry them.
package wrap
