package interact

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
)

const (
	tooltipPad      = 10
	tooltipMinWidth = 150
	notReported     = "N/A"
)

// Pointer is a pointer position in viewport coordinates.
type Pointer struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Placement positions the tooltip beside the pointer. Exactly one of Left
// and Right is set.
type Placement struct {
	Top   int  `json:"top"`
	Left  *int `json:"left,omitempty"`
	Right *int `json:"right,omitempty"`
}

// Row is one line of the tooltip.
type Row struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
	Pct   string `json:"pct,omitempty"`
	// Color names the legend colour of the row, if any.
	Color string `json:"color,omitempty"`
}

// Tooltip is the content and position of a data tooltip.
type Tooltip struct {
	Title     string    `json:"title"`
	State     string    `json:"state"`
	County    string    `json:"county,omitempty"`
	Rows      []Row     `json:"rows"`
	Columns   int       `json:"columns"`
	DrillHint bool      `json:"drill_hint"`
	Placement Placement `json:"placement"`
	// Crosshair is the cell-local x of the crosshair line.
	Crosshair int `json:"crosshair"`
}

type tooltipField struct {
	metric domain.Metric
	color  string
	pct    domain.Metric
	hasPct bool
}

func fieldSet(f layout.Filter) []tooltipField {
	switch f.Metric {
	case domain.Tests:
		return []tooltipField{
			{metric: domain.Positive, color: "primary1", pct: domain.PositivePct, hasPct: true},
			{metric: domain.Negative, color: "primary2", pct: domain.NegativePct, hasPct: true},
			{metric: domain.Pending, pct: domain.PendingPct, hasPct: true},
			{metric: domain.Tests},
			{metric: domain.Cases},
			{metric: domain.Deaths},
		}
	case domain.NewTests:
		return []tooltipField{
			{metric: domain.NewPositive, color: "primary1", pct: domain.NewPositivePct, hasPct: true},
			{metric: domain.NewNegative, color: "primary2", pct: domain.NewNegativePct, hasPct: true},
			{metric: domain.NewTests},
			{metric: domain.NewCases},
			{metric: domain.NewDeaths},
		}
	}
	set := make([]tooltipField, 0, 4)
	for _, m := range []domain.Metric{domain.Cases, domain.Deaths, domain.NewCases, domain.NewDeaths} {
		tf := tooltipField{metric: m}
		if m == f.Metric {
			tf.color = "primary1"
		}
		set = append(set, tf)
	}
	return set
}

// BuildTooltip assembles the tooltip for obs under filter f. Testing views
// list test results with percentages; other views list cases and deaths
// with the active metric highlighted. The hint to drill into counties is
// shown at state level outside testing views.
func BuildTooltip(obs domain.Observation, f layout.Filter, level domain.Level, p Pointer, viewportWidth int) Tooltip {
	testing := f.Testing()
	tip := Tooltip{
		Title:     layout.LongDate(obs.Date),
		State:     obs.State,
		County:    obs.County,
		Columns:   2,
		DrillHint: level == domain.LevelStates && !testing,
		Placement: place(p, viewportWidth),
	}
	if testing {
		tip.Columns = 3
	}
	for _, tf := range fieldSet(f) {
		field := domain.Field{Metric: tf.metric, PerCapita: f.PerCapita}
		row := Row{
			Field: field.Name(),
			Label: field.Label(),
			Value: formatValue(obs, field),
			Color: tf.color,
		}
		if testing && tf.hasPct {
			row.Pct = formatPct(obs, domain.Abs(tf.pct))
		}
		tip.Rows = append(tip.Rows, row)
	}
	return tip
}

func place(p Pointer, viewportWidth int) Placement {
	pl := Placement{Top: p.Y + tooltipPad}
	if p.X+tooltipMinWidth > viewportWidth {
		right := viewportWidth - p.X + tooltipPad
		pl.Right = &right
	} else {
		left := p.X + tooltipPad
		pl.Left = &left
	}
	return pl
}

func formatValue(obs domain.Observation, f domain.Field) string {
	v, ok := obs.Value(f)
	if !ok {
		return notReported
	}
	if f.PerCapita {
		return humanize.CommafWithDigits(v, 1) + " per 100k"
	}
	return humanize.Comma(int64(math.Round(v)))
}

func formatPct(obs domain.Observation, f domain.Field) string {
	v, ok := obs.Value(f)
	if !ok {
		return ""
	}
	return fmt.Sprintf("(%.1f%%)", v*100)
}

// TooltipState tracks the displayed tooltip so repeated pointer moves over
// the same bar do not rebuild it.
type TooltipState struct {
	shown   bool
	current domain.Observation
	tip     Tooltip
}

// Show displays the tooltip for obs. It rebuilds and reports true only when
// the tooltip was hidden or obs differs from the displayed observation.
func (s *TooltipState) Show(obs domain.Observation, build func() Tooltip) (Tooltip, bool) {
	if s.shown && s.current.SameDay(obs) {
		return s.tip, false
	}
	s.shown = true
	s.current = obs
	s.tip = build()
	return s.tip, true
}

// Hide hides the tooltip.
func (s *TooltipState) Hide() { s.shown = false }

// Shown reports whether a tooltip is displayed.
func (s *TooltipState) Shown() bool { return s.shown }

// Current returns the displayed observation.
func (s *TooltipState) Current() (domain.Observation, bool) {
	return s.current, s.shown
}
