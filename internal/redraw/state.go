package redraw

// State is where a screen is in its paint cycle.
type State uint8

const (
	// Idle screens have nothing to paint.
	Idle State = iota
	// Damaged screens are waiting for their pacing window.
	Damaged
	// Painting screens are inside the paint pipeline.
	Painting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Damaged:
		return "damaged"
	case Painting:
		return "painting"
	default:
		return "unknown"
	}
}
