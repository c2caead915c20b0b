// Package redraw decides when a damaged screen should be repainted.
//
// Each screen owns a Pacer. The target interval between frames starts at
// the display's refresh period and is widened to whole multiples of it when
// painting cannot keep up, then narrowed again once frames get cheap. The
// counters that drive both directions need several consecutive samples
// before they act, so a single slow or fast frame does not flip the frame
// rate.
package redraw
