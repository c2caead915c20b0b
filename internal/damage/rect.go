// Package damage tracks the parts of a screen that must be repainted.
// Rectangles that overlap or touch are coalesced, and once enough of the
// screen is damaged the tracker collapses to full damage.
package damage

import "fmt"

// Rect is an axis-aligned rectangle in screen pixels. X and Y may be
// negative for windows partly off screen.
type Rect struct {
	X, Y          int
	Width, Height int
}

// NewRect creates a rectangle from two corners given in any order.
func NewRect(x1, y1, x2, y2 int) Rect {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the number of pixels covered.
func (r Rect) Area() int64 {
	if r.Empty() {
		return 0
	}
	return int64(r.Width) * int64(r.Height)
}

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	if o.Empty() {
		return true
	}
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Overlaps reports whether r and o share at least one pixel.
func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Adjacent reports whether r and o touch along a full shared edge, so that
// their union is exactly a rectangle.
func (r Rect) Adjacent(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	// Stacked vertically with matching columns.
	if r.X == o.X && r.Width == o.Width && (r.Bottom() == o.Y || o.Bottom() == r.Y) {
		return true
	}
	// Side by side with matching rows.
	if r.Y == o.Y && r.Height == o.Height && (r.Right() == o.X || o.Right() == r.X) {
		return true
	}
	return false
}

// Union returns the bounding box of r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return NewRect(
		min(r.X, o.X), min(r.Y, o.Y),
		max(r.Right(), o.Right()), max(r.Bottom(), o.Bottom()),
	)
}

// Merge combines r and o when they overlap or are adjacent.
func (r Rect) Merge(o Rect) (Rect, bool) {
	if !r.Overlaps(o) && !r.Adjacent(o) {
		return Rect{}, false
	}
	return r.Union(o), true
}

// Intersect returns the overlap of r and o, or an empty Rect.
func (r Rect) Intersect(o Rect) Rect {
	if !r.Overlaps(o) {
		return Rect{}
	}
	return NewRect(
		max(r.X, o.X), max(r.Y, o.Y),
		min(r.Right(), o.Right()), min(r.Bottom(), o.Bottom()),
	)
}

// Translate returns r moved by dx, dy.
func (r Rect) Translate(dx, dy int) Rect {
	r.X += dx
	r.Y += dy
	return r
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}
