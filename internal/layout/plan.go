package layout

import (
	"time"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Plan is the complete layout of one dataset under one filter and viewport:
// the visible days, ranked cells, grid geometry, and scales. Renderer and
// hit testing share it.
type Plan struct {
	Filter Filter
	Days   []time.Time
	Cells  []Ranked
	Grid   Grid
	Band   BandScale

	shared YScale
}

// NewPlan lays out ds for filter f across a viewport width wide.
func NewPlan(ds *domain.Dataset, f Filter, width int, p Profile) Plan {
	days := VisibleWindow(ds.FirstDate, ds.LastDate, f.Window)
	cells := Rank(ds.Groups, f.Field(), days)
	grid := NewGrid(width, len(cells), p)
	plan := Plan{
		Filter: f,
		Days:   days,
		Cells:  cells,
		Grid:   grid,
		Band:   NewBandScale(len(days), grid.CellWidth),
	}
	plan.shared = NewYScale(ds.Extents.Get(f.Field()), plan.yOptions())
	return plan
}

func (p Plan) yOptions() YOptions {
	return YOptions{Log: p.Filter.UseLog(), PerCapita: p.Filter.PerCapita, Height: p.Grid.CellHeight}
}

// Shown returns the observations of cell i dated within the visible window.
func (p Plan) Shown(i int) []domain.Observation {
	if i < 0 || i >= len(p.Cells) || len(p.Days) == 0 {
		return nil
	}
	return p.Cells[i].Group.Between(p.Days[0], p.Days[len(p.Days)-1])
}

// YScale returns the scale of cell i: the shared scale, or one built from
// the cell's visible-window extent when y-axes are independent.
func (p Plan) YScale(i int) YScale {
	if p.Filter.SharedY {
		return p.shared
	}
	return NewYScale(domain.ExtentOf(p.Shown(i), p.Filter.Field()), p.yOptions())
}

// DayIndex returns the position of date in the visible window.
func (p Plan) DayIndex(date time.Time) (int, bool) {
	if len(p.Days) == 0 {
		return 0, false
	}
	i := int(date.Sub(p.Days[0]).Hours() / 24)
	if i < 0 || i >= len(p.Days) || !p.Days[i].Equal(date) {
		return 0, false
	}
	return i, true
}
