package term

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
)

var (
	desktopStyle = tcell.StyleDefault.Background(tcell.ColorNavy).Foreground(tcell.ColorGray)

	windowColors = []tcell.Color{
		tcell.ColorTeal,
		tcell.ColorOlive,
		tcell.ColorPurple,
		tcell.ColorMaroon,
		tcell.ColorGreen,
		tcell.ColorBlue,
	}
)

// Renderer draws windows as framed boxes of terminal cells.
type Renderer struct {
	screen tcell.Screen
}

// BeginFrame implements core.Renderer. The damaged area is cleared to the
// desktop.
func (r *Renderer) BeginFrame(mask core.PaintMask, region []damage.Rect) error {
	for _, rect := range region {
		r.fill(rect, ' ', desktopStyle)
	}
	return nil
}

// DrawWindow implements core.Renderer.
func (r *Renderer) DrawWindow(w *core.Window, attrib core.WindowPaintAttrib, region []damage.Rect) error {
	frame := w.Rect().Translate(attrib.XOffset, attrib.YOffset)
	style := windowStyle(w, attrib)
	title := fmt.Sprintf(" %#x ", uint32(w.ID()))

	for _, rect := range region {
		rect = rect.Translate(attrib.XOffset, attrib.YOffset).Intersect(frame)
		for y := rect.Y; y < rect.Bottom(); y++ {
			for x := rect.X; x < rect.Right(); x++ {
				r.screen.SetContent(x, y, cellRune(frame, title, x, y), nil, style)
			}
		}
	}
	return nil
}

// EndFrame implements core.Renderer.
func (r *Renderer) EndFrame() error {
	r.screen.Show()
	return nil
}

func (r *Renderer) fill(rect damage.Rect, ch rune, style tcell.Style) {
	for y := rect.Y; y < rect.Bottom(); y++ {
		for x := rect.X; x < rect.Right(); x++ {
			r.screen.SetContent(x, y, ch, nil, style)
		}
	}
}

func windowStyle(w *core.Window, attrib core.WindowPaintAttrib) tcell.Style {
	bg := windowColors[int(w.ID())%len(windowColors)]
	style := tcell.StyleDefault.Background(bg).Foreground(tcell.ColorWhite)
	if w.Focused() {
		style = style.Bold(true)
	}
	// Terminals have no alpha; anything noticeably see-through or darkened
	// is drawn dim.
	if attrib.Opacity < 0xc000 || attrib.Brightness < 0xc000 {
		style = style.Dim(true)
	}
	return style
}

// cellRune returns the character at x, y of a window framed by frame.
func cellRune(frame damage.Rect, title string, x, y int) rune {
	left, right := x == frame.X, x == frame.Right()-1
	top, bottom := y == frame.Y, y == frame.Bottom()-1

	switch {
	case top && left:
		return '┌'
	case top && right:
		return '┐'
	case bottom && left:
		return '└'
	case bottom && right:
		return '┘'
	case top:
		if i := x - frame.X - 1; i >= 0 && i < len(title) {
			return rune(title[i])
		}
		return '─'
	case bottom:
		return '─'
	case left || right:
		return '│'
	}
	return ' '
}
