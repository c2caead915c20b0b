package damage

import "strings"

// Mask records what kind of damage a screen has.
type Mask uint8

const (
	// Pending asks for a paint pass even with nothing damaged yet, so
	// plugins can add damage from PreparePaint.
	Pending Mask = 1 << iota

	// Region means the tracked rectangles need repainting.
	Region

	// All means the whole screen needs repainting.
	All
)

// String lists the set flags.
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&Pending != 0 {
		parts = append(parts, "pending")
	}
	if m&Region != 0 {
		parts = append(parts, "region")
	}
	if m&All != 0 {
		parts = append(parts, "all")
	}
	return strings.Join(parts, "|")
}

const (
	defaultMaxRects  = 32
	defaultThreshold = 0.5
)

// Tracker accumulates damage for one screen.
// It is not safe for concurrent use.
type Tracker struct {
	bounds    Rect
	rects     []Rect
	mask      Mask
	maxRects  int
	threshold float64
}

// NewTracker creates a tracker for a screen of the given size.
func NewTracker(width, height int) *Tracker {
	return &Tracker{
		bounds:    Rect{Width: max(width, 0), Height: max(height, 0)},
		rects:     make([]Rect, 0, 16),
		maxRects:  defaultMaxRects,
		threshold: defaultThreshold,
	}
}

// SetThreshold sets the fraction of the screen above which region damage
// becomes full damage. Values outside (0, 1] are ignored.
func (t *Tracker) SetThreshold(f float64) {
	if f > 0 && f <= 1 {
		t.threshold = f
	}
}

// Bounds returns the screen rectangle.
func (t *Tracker) Bounds() Rect {
	return t.bounds
}

// Resize changes the screen size and damages all of it.
func (t *Tracker) Resize(width, height int) {
	t.bounds = Rect{Width: max(width, 0), Height: max(height, 0)}
	t.AddAll()
}

// AddAll damages the whole screen.
func (t *Tracker) AddAll() {
	t.mask |= All
	t.mask &^= Region
	t.rects = t.rects[:0]
}

// AddPending requests a paint pass without damaging anything.
func (t *Tracker) AddPending() {
	t.mask |= Pending
}

// Add damages r, clipped to the screen. It reports whether anything new was
// recorded.
func (t *Tracker) Add(r Rect) bool {
	if t.mask&All != 0 {
		return false
	}
	r = r.Intersect(t.bounds)
	if r.Empty() {
		return false
	}

	for _, existing := range t.rects {
		if existing.ContainsRect(r) {
			return false
		}
	}

	t.mask |= Region
	merged := false
	for i := range t.rects {
		if m, ok := t.rects[i].Merge(r); ok {
			t.rects[i] = m
			merged = true
			break
		}
	}
	if !merged {
		t.rects = append(t.rects, r)
	}
	t.coalesce()

	if len(t.rects) > t.maxRects || t.ratio() > t.threshold {
		t.AddAll()
	}
	return true
}

// coalesce merges rectangles until no pair overlaps or touches.
func (t *Tracker) coalesce() {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(t.rects) && !changed; i++ {
			for j := i + 1; j < len(t.rects); j++ {
				if m, ok := t.rects[i].Merge(t.rects[j]); ok {
					t.rects[i] = m
					t.rects = append(t.rects[:j], t.rects[j+1:]...)
					changed = true
					break
				}
			}
		}
	}
}

func (t *Tracker) ratio() float64 {
	total := t.bounds.Area()
	if total == 0 {
		return 0
	}
	var area int64
	for _, r := range t.rects {
		area += r.Area()
	}
	return float64(area) / float64(total)
}

// Mask returns the current damage flags.
func (t *Tracker) Mask() Mask {
	return t.mask
}

// Damaged reports whether any paint is needed.
func (t *Tracker) Damaged() bool {
	return t.mask != 0
}

// Full reports whether the whole screen is damaged.
func (t *Tracker) Full() bool {
	return t.mask&All != 0
}

// Rects returns a copy of the damaged rectangles. Full damage is reported as
// the screen bounds.
func (t *Tracker) Rects() []Rect {
	if t.mask&All != 0 {
		if t.bounds.Empty() {
			return nil
		}
		return []Rect{t.bounds}
	}
	out := make([]Rect, len(t.rects))
	copy(out, t.rects)
	return out
}

// Overlaps reports whether r intersects anything damaged.
func (t *Tracker) Overlaps(r Rect) bool {
	if t.mask&All != 0 {
		return r.Overlaps(t.bounds)
	}
	for _, d := range t.rects {
		if d.Overlaps(r) {
			return true
		}
	}
	return false
}

// Take returns the current damage and clears the tracker, so damage added
// afterwards belongs to the next frame.
func (t *Tracker) Take() (Mask, []Rect) {
	mask, rects := t.mask, t.Rects()
	t.Clear()
	return mask, rects
}

// Clear forgets all damage.
func (t *Tracker) Clear() {
	t.mask = 0
	t.rects = t.rects[:0]
}
