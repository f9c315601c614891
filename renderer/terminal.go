package renderer

import (
	"image"

	"github.com/gdamore/tcell/v2"
)

// upperHalf draws the top half of a cell in the foreground color; the
// background color fills the bottom half.
const upperHalf = '▀'

// Terminal presents frames as half-block cells, two frame rows per
// terminal row, sampled nearest-neighbour to fill the screen.
type Terminal struct {
	screen tcell.Screen
	// StatusLine, if set, is drawn over the first row.
	StatusLine func() string
}

// NewTerminal creates a presenter drawing to an initialized screen.
func NewTerminal(screen tcell.Screen) *Terminal {
	return &Terminal{screen: screen}
}

// Present draws frame and shows the screen.
func (t *Terminal) Present(frame *image.RGBA) error {
	cols, rows := t.screen.Size()
	fw, fh := frame.Rect.Dx(), frame.Rect.Dy()
	if cols <= 0 || rows <= 0 || fw == 0 || fh == 0 {
		return nil
	}

	for row := 0; row < rows; row++ {
		top := frame.Rect.Min.Y + (2*row)*fh/(2*rows)
		bottom := frame.Rect.Min.Y + (2*row+1)*fh/(2*rows)
		for col := 0; col < cols; col++ {
			x := frame.Rect.Min.X + col*fw/cols
			style := tcell.StyleDefault.
				Foreground(cellColor(frame, x, top)).
				Background(cellColor(frame, x, bottom))
			t.screen.SetContent(col, row, upperHalf, nil, style)
		}
	}

	if t.StatusLine != nil {
		style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
		for i, r := range []rune(t.StatusLine()) {
			if i >= cols {
				break
			}
			t.screen.SetContent(i, 0, r, nil, style)
		}
	}

	t.screen.Show()
	return nil
}

func cellColor(frame *image.RGBA, x, y int) tcell.Color {
	c := frame.RGBAAt(x, y)
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}
