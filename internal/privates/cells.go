package privates

import (
	"errors"
	"fmt"
)

// MaxCells bounds the size of a single object's table.
const MaxCells = 1024

// Cell errors.
var (
	// ErrTooManyCells is returned when a table would exceed MaxCells.
	ErrTooManyCells = errors.New("privates: too many cells")

	// ErrOutOfRange is returned when an index is beyond the table.
	ErrOutOfRange = errors.New("privates: index out of range")
)

// Cells is the private storage carried by one object.
// The zero value is an empty table ready to grow.
type Cells struct {
	slots []any
}

// NewCells returns a table with size empty cells.
func NewCells(size int) *Cells {
	c := &Cells{}
	_ = c.Grow(size)
	return c
}

// Grow extends the table to hold at least size cells. It never shrinks.
func (c *Cells) Grow(size int) error {
	if size > MaxCells {
		return fmt.Errorf("%w: %d > %d", ErrTooManyCells, size, MaxCells)
	}
	if size <= len(c.slots) {
		return nil
	}
	grown := make([]any, size)
	copy(grown, c.slots)
	c.slots = grown
	return nil
}

// Len returns the number of cells.
func (c *Cells) Len() int {
	return len(c.slots)
}

// Get returns the value at index, or nil when unset or out of range.
func (c *Cells) Get(index Index) any {
	if index < 0 || int(index) >= len(c.slots) {
		return nil
	}
	return c.slots[index]
}

// Set stores v at index.
func (c *Cells) Set(index Index, v any) error {
	if index < 0 || int(index) >= len(c.slots) {
		return fmt.Errorf("%w: %d (len %d)", ErrOutOfRange, index, len(c.slots))
	}
	c.slots[index] = v
	return nil
}

// Clear empties the cell at index.
func (c *Cells) Clear(index Index) {
	if index >= 0 && int(index) < len(c.slots) {
		c.slots[index] = nil
	}
}

// Holder is implemented by every object that carries private storage.
type Holder interface {
	Privates() *Cells
}
