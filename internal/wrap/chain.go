package wrap

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrUnknownHandle is returned when removing a handle the chain does not hold.
var ErrUnknownHandle = errors.New("wrap: unknown handle")

// Void is the argument or result type of operations that have none.
type Void = struct{}

// Handle identifies one installed link. Handles are unique across all chains
// in the process and zero is never issued.
type Handle uint64

var lastHandle atomic.Uint64

func nextHandle() Handle {
	return Handle(lastHandle.Add(1))
}

// Next continues a call with the link installed before the current one.
type Next[A, R any] func(A) R

// Func is one interception link.
type Func[A, R any] func(args A, next Next[A, R]) R

type link[A, R any] struct {
	handle Handle
	owner  string
	fn     Func[A, R]
}

// Chain is the interception list for one operation on one object.
type Chain[A, R any] struct {
	name  string
	base  func(A) R
	links []link[A, R]
}

// New creates a chain whose base implementation is base.
func New[A, R any](name string, base func(A) R) *Chain[A, R] {
	return &Chain[A, R]{name: name, base: base}
}

// Name returns the operation name.
func (c *Chain[A, R]) Name() string {
	return c.name
}

// SetBase replaces the base implementation. Installed links are kept.
func (c *Chain[A, R]) SetBase(base func(A) R) {
	c.base = base
}

// Install adds fn at the head of the chain on behalf of owner.
func (c *Chain[A, R]) Install(owner string, fn Func[A, R]) Handle {
	h := nextHandle()
	links := make([]link[A, R], len(c.links), len(c.links)+1)
	copy(links, c.links)
	c.links = append(links, link[A, R]{handle: h, owner: owner, fn: fn})
	return h
}

// Remove takes out the link identified by h.
func (c *Chain[A, R]) Remove(h Handle) error {
	for i, l := range c.links {
		if l.handle != h {
			continue
		}
		links := make([]link[A, R], 0, len(c.links)-1)
		links = append(links, c.links[:i]...)
		c.links = append(links, c.links[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %d on %s", ErrUnknownHandle, h, c.name)
}

// RemoveOwner removes every link installed by owner, newest first, and
// returns how many were removed.
func (c *Chain[A, R]) RemoveOwner(owner string) int {
	removed := 0
	for i := len(c.links) - 1; i >= 0; i-- {
		if c.links[i].owner != owner {
			continue
		}
		if err := c.Remove(c.links[i].handle); err == nil {
			removed++
		}
	}
	return removed
}

// Has reports whether h is installed on the chain.
func (c *Chain[A, R]) Has(h Handle) bool {
	for _, l := range c.links {
		if l.handle == h {
			return true
		}
	}
	return false
}

// Len returns the number of installed links.
func (c *Chain[A, R]) Len() int {
	return len(c.links)
}

// Owners returns the owner of every link, head first.
func (c *Chain[A, R]) Owners() []string {
	owners := make([]string, len(c.links))
	for i, l := range c.links {
		owners[len(c.links)-1-i] = l.owner
	}
	return owners
}

// Call runs the chain with args.
//
// The chain is snapshotted when the call starts: links installed or removed
// while it runs take effect on the next call.
func (c *Chain[A, R]) Call(args A) R {
	links := c.links
	base := c.base

	var step func(i int, a A) R
	step = func(i int, a A) R {
		if i < 0 {
			if base == nil {
				var zero R
				return zero
			}
			return base(a)
		}
		return links[i].fn(a, func(a A) R { return step(i-1, a) })
	}
	return step(len(links)-1, args)
}

// CallBase runs only the base implementation, skipping every link.
func (c *Chain[A, R]) CallBase(args A) R {
	if c.base == nil {
		var zero R
		return zero
	}
	return c.base(args)
}
