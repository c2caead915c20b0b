package privates

import (
	"errors"
	"fmt"
)

// Kind identifies a family of objects that share one index space.
type Kind int

// Object kinds.
const (
	KindCore Kind = iota
	KindDisplay
	KindScreen
	KindWindow
)

// NumKinds is the number of object kinds.
const NumKinds = 4

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCore:
		return "core"
	case KindDisplay:
		return "display"
	case KindScreen:
		return "screen"
	case KindWindow:
		return "window"
	default:
		return "unknown"
	}
}

// Index is a private storage slot.
type Index int

// InvalidIndex is never returned by a successful Allocate.
const InvalidIndex Index = -1

// ChunkSize is the number of indices added each time an allocator runs out.
const ChunkSize = 8

// Allocator errors.
var (
	// ErrNotAllocated is returned when freeing an index that is not held.
	ErrNotAllocated = errors.New("privates: index not allocated")

	// ErrGrowFailed is returned when the backing could not resize its objects.
	ErrGrowFailed = errors.New("privates: growing object storage failed")
)

// Backing is implemented by the owner of an object kind.
type Backing interface {
	// Grow resizes every live object of the kind to hold at least size cells.
	// On error no object may be left smaller than before.
	Grow(size int) error

	// Reset clears index on every live object of the kind.
	Reset(index Index)
}

// BackingFuncs adapts plain functions to the Backing interface.
// Nil functions are no-ops.
type BackingFuncs struct {
	GrowFunc  func(size int) error
	ResetFunc func(index Index)
}

// Grow implements Backing.
func (b BackingFuncs) Grow(size int) error {
	if b.GrowFunc == nil {
		return nil
	}
	return b.GrowFunc(size)
}

// Reset implements Backing.
func (b BackingFuncs) Reset(index Index) {
	if b.ResetFunc != nil {
		b.ResetFunc(index)
	}
}

// Allocator assigns and recycles slot indices for one object kind.
type Allocator struct {
	kind    Kind
	used    []bool
	count   int
	backing Backing
}

// NewAllocator creates an allocator for kind. backing may be nil when no
// objects of the kind exist yet.
func NewAllocator(kind Kind, backing Backing) *Allocator {
	return &Allocator{
		kind:    kind,
		backing: backing,
	}
}

// SetBacking replaces the backing used for growth and reset.
func (a *Allocator) SetBacking(b Backing) {
	a.backing = b
}

// Kind returns the object kind served by the allocator.
func (a *Allocator) Kind() Kind {
	return a.kind
}

// Allocate returns the lowest free index.
//
// When every index is in use the bitmap grows by ChunkSize and the backing is
// asked to resize every live object. If that fails nothing is committed and
// the error wraps ErrGrowFailed. A reused index is reset on every live object
// before it is returned, so it never exposes a previous owner's data.
func (a *Allocator) Allocate() (Index, error) {
	for i, inUse := range a.used {
		if inUse {
			continue
		}
		a.used[i] = true
		a.count++
		if a.backing != nil {
			a.backing.Reset(Index(i))
		}
		return Index(i), nil
	}

	size := len(a.used) + ChunkSize
	if a.backing != nil {
		if err := a.backing.Grow(size); err != nil {
			return InvalidIndex, fmt.Errorf("%w: %s to %d cells: %v", ErrGrowFailed, a.kind, size, err)
		}
	}

	idx := Index(len(a.used))
	a.used = append(a.used, make([]bool, ChunkSize)...)
	a.used[idx] = true
	a.count++
	return idx, nil
}

// Free releases index. It does not touch any object's cell contents; owners
// clear their cells (normally from fini hooks) before freeing.
func (a *Allocator) Free(index Index) error {
	if !a.InUse(index) {
		return fmt.Errorf("%w: %s index %d", ErrNotAllocated, a.kind, index)
	}
	a.used[index] = false
	a.count--
	return nil
}

// InUse reports whether index is currently allocated.
func (a *Allocator) InUse(index Index) bool {
	return index >= 0 && int(index) < len(a.used) && a.used[index]
}

// Len returns the high-water mark: the number of cells every object of the
// kind must hold.
func (a *Allocator) Len() int {
	return len(a.used)
}

// Count returns the number of indices currently allocated.
func (a *Allocator) Count() int {
	return a.count
}

// Allocated returns the allocated indices in ascending order.
func (a *Allocator) Allocated() []Index {
	out := make([]Index, 0, a.count)
	for i, inUse := range a.used {
		if inUse {
			out = append(out, Index(i))
		}
	}
	return out
}
