package render

import (
	"fmt"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Palette holds the chart colours.
type Palette struct {
	Bar      drawing.Color
	Primary1 drawing.Color
	Primary2 drawing.Color
	Axis     drawing.Color
	Grid     drawing.Color
	Text     drawing.Color
	Muted    drawing.Color
}

// DefaultPalette returns the built-in colours.
func DefaultPalette() Palette {
	return Palette{
		Bar:      drawing.ColorFromHex("5b6fa6"),
		Primary1: drawing.ColorFromHex("d9534f"),
		Primary2: drawing.ColorFromHex("8fb8de"),
		Axis:     drawing.ColorFromHex("444444"),
		Grid:     drawing.ColorFromHex("e6e6e6"),
		Text:     drawing.ColorFromHex("222222"),
		Muted:    drawing.ColorFromHex("888888"),
	}
}

// Layer returns the fill of stack layer i out of n.
func (p Palette) Layer(i, n int) drawing.Color {
	if n == 1 {
		return p.Bar
	}
	if i == 0 {
		return p.Primary1
	}
	return p.Primary2
}

func hex(c drawing.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
