package render

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const ellipsis = "…"

// textWidth approximates the rendered width of s in pixels.
func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

// fitLabel truncates s with an ellipsis so it fits within maxWidth pixels.
func fitLabel(s string, maxWidth int) string {
	if textWidth(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := string(runes[:n]) + ellipsis
		if textWidth(candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}
