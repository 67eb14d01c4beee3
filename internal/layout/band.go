package layout

import "math"

// BandScale maps day indices to evenly spaced bars over a pixel width,
// rounded to whole pixels the way d3's scaleBand().rangeRound does.
type BandScale struct {
	n         int
	start     float64
	step      float64
	bandwidth float64
}

// NewBandScale builds the band scale for days bars across width pixels.
// Bars are padded by 2px when at most 10 are shown, 1px otherwise.
func NewBandScale(days, width int) BandScale {
	if days < 1 || width < 1 {
		return BandScale{n: max(days, 0)}
	}
	barPad := 1.0
	if days <= 10 {
		barPad = 2
	}
	w, n := float64(width), float64(days)
	inner := math.Min(1, barPad*n/w)
	outer := barPad * 5 / w

	step := math.Floor(w / math.Max(1, n-inner+2*outer))
	start := jsRound((w - step*(n-inner)) * 0.5)
	bw := jsRound(step * (1 - inner))
	return BandScale{n: days, start: start, step: step, bandwidth: bw}
}

// jsRound rounds half up, matching JavaScript Math.round.
func jsRound(x float64) float64 { return math.Floor(x + 0.5) }

// Len returns the number of bands.
func (b BandScale) Len() int { return b.n }

// X returns the left edge of bar i.
func (b BandScale) X(i int) float64 { return b.start + b.step*float64(i) }

// Bandwidth returns the bar width.
func (b BandScale) Bandwidth() float64 { return b.bandwidth }

// Step returns the distance between consecutive bar edges.
func (b BandScale) Step() float64 { return b.step }

// Midpoint returns the horizontal centre of bar i.
func (b BandScale) Midpoint(i int) float64 { return b.X(i) + b.bandwidth/2 }

// Midpoints returns every bar centre, ascending.
func (b BandScale) Midpoints() []float64 {
	out := make([]float64, b.n)
	for i := range out {
		out[i] = b.Midpoint(i)
	}
	return out
}
