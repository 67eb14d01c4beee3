// Package render draws the small-multiples grid as SVG and exports single
// cells as PNG bar charts.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	svg "github.com/ajstarks/svgo"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
)

const (
	labelX, labelY    = 6, 14
	unavailableHeight = 120
	unavailableText   = "Testing data unavailable"
	noPopulationText  = "No population data"
)

// ErrNoDataset is returned when rendering is requested before data loaded.
var ErrNoDataset = errors.New("no dataset loaded")

// Cell is the hit-test data of one rendered chart.
type Cell struct {
	Index int
	Rank  int
	Key   string
	State string
	// X and Y are the cell origin on the canvas.
	X, Y int
	// Days is the visible window and Midpoints the bar centre of each day.
	Days      []time.Time
	Midpoints []float64
	Bandwidth float64
	// Shown holds the observations dated within the window.
	Shown        []domain.Observation
	NoPopulation bool
	Clickable    bool
}

// Crosshair returns the x position of the crosshair over day i.
func (c Cell) Crosshair(i int) int {
	if i < 0 || i >= len(c.Midpoints) {
		return 0
	}
	return int(jsRound(c.Midpoints[i]))
}

// Frame is one complete render: the SVG document and per-cell hit-test
// data. Frames are rebuilt from scratch on every render.
type Frame struct {
	SVG    []byte
	Width  int
	Height int
	Level  domain.Level
	Filter layout.Filter
	Plan   layout.Plan
	Cells  []Cell
	// Unavailable is set when the view has no data at this level and a fixed
	// panel was drawn instead of a grid.
	Unavailable bool
}

// Drillable reports whether cells of this frame lead to a county view.
func (f Frame) Drillable() bool {
	return f.Level == domain.LevelStates && !f.Filter.Testing()
}

// Renderer draws frames.
type Renderer struct {
	profile layout.Profile
	palette Palette
}

// NewRenderer creates a Renderer with the given grid profile.
func NewRenderer(profile layout.Profile) *Renderer {
	return &Renderer{profile: profile, palette: DefaultPalette()}
}

// Profile returns the grid profile the renderer lays out with.
func (r *Renderer) Profile() layout.Profile { return r.profile }

// Render lays out ds under filter f for a viewport width wide and draws it.
// Identical inputs produce identical bytes.
func (r *Renderer) Render(ds *domain.Dataset, f layout.Filter, width int, level domain.Level) (Frame, error) {
	if ds == nil {
		return Frame{}, ErrNoDataset
	}
	if level == domain.LevelCounties && f.Testing() {
		return r.unavailable(f, width, level), nil
	}

	plan := layout.NewPlan(ds, f, width, r.profile)
	frame := Frame{
		Width:  plan.Grid.Width,
		Height: plan.Grid.TotalHeight,
		Level:  level,
		Filter: f,
		Plan:   plan,
		Cells:  make([]Cell, len(plan.Cells)),
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(frame.Width, frame.Height,
		fmt.Sprintf(`viewBox="0 0 %d %d"`, frame.Width, frame.Height),
		fmt.Sprintf(`class="%s"`, yClass(f)),
		`font-family="sans-serif" font-size="11"`,
	)
	mids := plan.Band.Midpoints()
	for i, ranked := range plan.Cells {
		x, y := plan.Grid.CellOrigin(i)
		cell := Cell{
			Index:        i,
			Rank:         ranked.Rank,
			Key:          ranked.Group.Key,
			State:        ranked.Group.State,
			X:            x,
			Y:            y,
			Days:         plan.Days,
			Midpoints:    mids,
			Bandwidth:    plan.Band.Bandwidth(),
			Shown:        plan.Shown(i),
			NoPopulation: ranked.Group.NoPopulation,
			Clickable:    frame.Drillable(),
		}
		r.drawCell(canvas, plan, cell)
		frame.Cells[i] = cell
	}
	canvas.End()
	frame.SVG = buf.Bytes()
	return frame, nil
}

func yClass(f layout.Filter) string {
	if f.SharedY {
		return "consistent-y"
	}
	return "independent-y"
}

func (r *Renderer) unavailable(f layout.Filter, width int, level domain.Level) Frame {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(width, unavailableHeight, fmt.Sprintf(`viewBox="0 0 %d %d"`, width, unavailableHeight))
	canvas.Text(width/2, unavailableHeight/2, unavailableText,
		`class="testing-data-unavailable"`, `text-anchor="middle"`, "fill:"+hex(r.palette.Muted))
	canvas.End()
	return Frame{
		SVG:         buf.Bytes(),
		Width:       width,
		Height:      unavailableHeight,
		Level:       level,
		Filter:      f,
		Unavailable: true,
	}
}

func (r *Renderer) drawCell(canvas *svg.SVG, plan layout.Plan, c Cell) {
	w, h := plan.Grid.CellWidth, plan.Grid.CellHeight
	ys := plan.YScale(c.Index)

	class := "cell"
	if c.Clickable {
		class += " cell-clickable"
	}
	canvas.Group(
		fmt.Sprintf(`class="%s"`, class),
		fmt.Sprintf(`transform="translate(%d,%d)"`, c.X, c.Y),
		fmt.Sprintf(`data-index="%d"`, c.Index),
	)

	canvas.Line(0, h, w, h, `class="baseline"`, "stroke:"+hex(r.palette.Axis))

	canvas.Group(`class="y-axis"`)
	for _, tk := range ys.Ticks() {
		ty := int(jsRound(tk.Y))
		canvas.Line(0, ty, w, ty, `class="tick"`, "stroke:"+hex(r.palette.Grid))
		canvas.Text(-3, ty, tk.Label, `class="y-tick"`, `text-anchor="end"`, `dy=".32em"`, "fill:"+hex(r.palette.Muted))
	}
	canvas.Gend()

	showBars := !(plan.Filter.PerCapita && c.NoPopulation)
	if showBars {
		r.drawLayers(canvas, plan, c, ys)
	}

	canvas.Line(0, 0, 0, h, `class="crosshair crosshair-hidden"`)
	canvas.Rect(0, 0, w, h, `class="pointer"`, "fill-opacity:0")
	canvas.Text(labelX, labelY, fitLabel(fmt.Sprintf("%d. %s", c.Rank, c.Key), w-2*labelX),
		`class="cell-label"`, "fill:"+hex(r.palette.Text))
	if !showBars {
		canvas.Text(w/2, h/2, noPopulationText, `class="cell-label-nopop"`, `text-anchor="middle"`, "fill:"+hex(r.palette.Muted))
	}

	if len(plan.Days) > 0 {
		start, end := plan.Days[0], plan.Days[len(plan.Days)-1]
		canvas.Text(0, h+4, layout.ShortDate(start), `class="x-tick x-tick-start"`, `text-anchor="start"`, `dy="1em"`)
		canvas.Text(w, h+4, layout.ShortDate(end), `class="x-tick x-tick-end"`, `text-anchor="end"`, `dy="1em"`)
	}
	canvas.Gend()
}

func (r *Renderer) drawLayers(canvas *svg.SVG, plan layout.Plan, c Cell, ys layout.YScale) {
	fields := plan.Filter.StackFields()
	bw := int(plan.Band.Bandwidth())
	stacks := make([][]Segment, len(c.Shown))
	days := make([]int, len(c.Shown))
	for j, o := range c.Shown {
		stacks[j] = Stack(o, fields)
		days[j], _ = plan.DayIndex(o.Date)
	}
	for li, f := range fields {
		canvas.Group(
			fmt.Sprintf(`class="layer layer-%d layer-%s"`, li+1, f.Name()),
			"fill:"+hex(r.palette.Layer(li, len(fields))),
		)
		for j, segs := range stacks {
			seg := segs[li]
			if !seg.Defined {
				continue
			}
			x := int(plan.Band.X(days[j]))
			canvas.Rect(x, ys.BarY(seg.Top), bw, ys.BarHeight(seg.Bottom, seg.Top), `class="bar"`)
		}
		canvas.Gend()
	}
}

// jsRound rounds half up.
func jsRound(x float64) float64 { return math.Floor(x + 0.5) }
