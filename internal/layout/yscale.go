package layout

import (
	"math"
	"strconv"

	"github.com/aclements/go-moremath/scale"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Upper-bound floors keep near-empty charts from exaggerating noise.
const (
	absoluteFloor  = 10
	perCapitaFloor = 2
	linearTicks    = 4
)

// YOptions selects the y-scale variant.
type YOptions struct {
	Log       bool
	PerCapita bool
	// Height is the plot height in pixels; the range is [Height, 0].
	Height int
}

// YScale maps values onto a chart's vertical pixel range. It is a plain
// value: building it has no side effects and every method is pure.
type YScale struct {
	log      bool
	min, max float64
	height   float64
	lin      scale.Linear
	lg       scale.Log
}

// NewYScale builds a niced scale over [0, max(ext.Max, floor)]. On a log
// scale the lower bound is 1.
func NewYScale(ext domain.Extent, o YOptions) YScale {
	floor := float64(absoluteFloor)
	if o.PerCapita {
		floor = perCapitaFloor
	}
	hi := floor
	if ext.HasMax && ext.Max > hi {
		hi = ext.Max
	}
	s := YScale{height: float64(o.Height)}

	if o.Log {
		lo := 1.0
		hi = ceilPow10(hi)
		if lg, err := scale.NewLog(lo, hi, 10); err == nil {
			s.log, s.lg, s.min, s.max = true, lg, lo, hi
			return s
		}
	}

	s.lin = scale.Linear{Min: 0, Max: hi}
	s.lin.Nice(scale.TickOptions{Max: 10})
	s.min, s.max = s.lin.Min, s.lin.Max
	return s
}

// ceilPow10 returns the smallest power of ten not below v.
func ceilPow10(v float64) float64 {
	p := 1.0
	for p < v {
		p *= 10
	}
	return p
}

// Domain returns the niced domain bounds.
func (s YScale) Domain() (lo, hi float64) { return s.min, s.max }

// IsLog reports whether the scale is logarithmic.
func (s YScale) IsLog() bool { return s.log }

// Height returns the plot height.
func (s YScale) Height() float64 { return s.height }

// Map returns the pixel row of v. The result may be non-finite for values a
// log scale cannot represent; BarY and BarHeight clamp it.
func (s YScale) Map(v float64) float64 {
	var t float64
	if s.log {
		t = s.lg.Map(v)
	} else {
		t = s.lin.Map(v)
	}
	return s.height - t*s.height
}

// Invert returns the value at pixel row y.
func (s YScale) Invert(y float64) float64 {
	if s.height == 0 {
		return s.min
	}
	t := (s.height - y) / s.height
	if s.log {
		lo, hi := math.Log10(s.min), math.Log10(s.max)
		return math.Pow(10, lo+t*(hi-lo))
	}
	return s.min + t*(s.max-s.min)
}

// BarY returns the top pixel of a bar reaching top, or the baseline when
// the position is not finite.
func (s YScale) BarY(top float64) int {
	y := math.Floor(s.Map(top))
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return int(s.height)
	}
	return int(y)
}

// BarHeight returns the pixel height of a bar segment spanning
// [bottom, top], never negative and 0 when not finite.
func (s YScale) BarHeight(bottom, top float64) int {
	h := math.Ceil(s.height - s.Map(top-bottom))
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	return int(math.Max(h, 0))
}

// TickCount returns the number of axis ticks: fixed for linear scales and
// fewer for log scales with a larger upper bound.
func (s YScale) TickCount() int {
	if !s.log {
		return linearTicks
	}
	switch {
	case s.max < 100:
		return 1
	case s.max < 1000:
		return 2
	case s.max < 10000:
		return 3
	default:
		return 4
	}
}

// Tick is one labelled y-axis position.
type Tick struct {
	Value float64
	Y     float64
	Label string
}

// Ticks returns the axis ticks, ascending by value.
func (s YScale) Ticks() []Tick {
	// A count of n ticks means n intervals, as in d3.
	o := scale.TickOptions{Max: s.TickCount() + 1}
	var major []float64
	if s.log {
		major, _ = s.lg.Ticks(o)
	} else {
		major, _ = s.lin.Ticks(o)
	}
	if len(major) == 0 {
		major = []float64{s.min, s.max}
	}
	ticks := make([]Tick, 0, len(major))
	for _, v := range major {
		y := s.Map(v)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		ticks = append(ticks, Tick{Value: v, Y: y, Label: FormatTick(v)})
	}
	return ticks
}

// FormatTick abbreviates thousands as "k" and millions as "m".
func FormatTick(v float64) string {
	switch {
	case v >= 1e6:
		return formatNumber(v/1e6) + "m"
	case v >= 1e3:
		return formatNumber(v/1e3) + "k"
	default:
		return formatNumber(v)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
