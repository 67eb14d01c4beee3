package render

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
)

const (
	pngMinWidth = 480
	pngMargin   = 80
)

// RenderCellPNG writes cell index of the laid-out dataset as a PNG bar
// chart. Each bar is the top of the day's stack, coloured by its top layer.
func (r *Renderer) RenderCellPNG(w io.Writer, ds *domain.Dataset, f layout.Filter, width, index int) error {
	if ds == nil {
		return ErrNoDataset
	}
	plan := layout.NewPlan(ds, f, width, r.profile)
	if index < 0 || index >= len(plan.Cells) {
		return fmt.Errorf("cell %d out of range [0, %d)", index, len(plan.Cells))
	}
	ranked := plan.Cells[index]
	if len(plan.Days) < 2 {
		return fmt.Errorf("cell %d: need at least two days to chart", index)
	}

	fields := f.StackFields()
	byDay := make(map[int][]Segment)
	for _, o := range plan.Shown(index) {
		if i, ok := plan.DayIndex(o.Date); ok {
			byDay[i] = Stack(o, fields)
		}
	}

	bars := make([]chart.Value, len(plan.Days))
	for i, d := range plan.Days {
		label := ""
		if i == 0 || i == len(plan.Days)-1 {
			label = layout.ShortDate(d)
		}
		v := 0.0
		fill := r.palette.Layer(0, len(fields))
		if segs, ok := byDay[i]; ok {
			v = StackTop(segs)
			for li := len(segs) - 1; li >= 0; li-- {
				if segs[li].Defined {
					fill = r.palette.Layer(li, len(fields))
					break
				}
			}
		}
		if v < 0 {
			v = 0
		}
		bars[i] = chart.Value{
			Value: v,
			Label: label,
			Style: chart.Style{FillColor: fill, StrokeColor: fill},
		}
	}

	ys := plan.YScale(index)
	lo, hi := ys.Domain()
	// The PNG export always uses a linear axis over the cell's domain.
	var ticks []chart.Tick
	if ys.IsLog() {
		lo = 0
	} else {
		for _, tk := range ys.Ticks() {
			ticks = append(ticks, chart.Tick{Value: tk.Value, Label: tk.Label})
		}
	}

	chartWidth := max(pngMinWidth, 2*plan.Grid.CellWidth)
	barWidth := max(1, (chartWidth-pngMargin)/len(bars)-1)
	bc := chart.BarChart{
		Title:      fmt.Sprintf("%d. %s: %s", ranked.Rank, ranked.Group.Key, chartTitle(f)),
		Width:      chartWidth,
		Height:     int(float64(chartWidth) / r.profile.AspectRatio),
		BarWidth:   barWidth,
		BarSpacing: 1,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			Ticks: ticks,
		},
		Bars: bars,
	}
	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render cell %d png: %w", index, err)
	}
	return nil
}

func chartTitle(f layout.Filter) string {
	title := f.Field().Label()
	if f.PerCapita {
		title += " per 100k"
	}
	return title
}
