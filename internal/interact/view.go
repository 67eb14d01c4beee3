// Package interact holds the pointer and navigation logic of the grid: the
// view state machine, nearest-bar hit testing, tooltip content, and resize
// throttling.
package interact

import "github.com/couchcryptid/covid-grid-service/internal/domain"

// SelectAll is the external selector value for the all-states view.
const SelectAll = "all"

// View is either the all-states grid or the county grid of one state. The
// zero value is AllGeographies.
type View struct {
	state string
}

// AllGeographies is the initial view.
func AllGeographies() View { return View{} }

// Drilldown is the county view of state.
func Drilldown(state string) View { return View{state: state} }

// IsDrilldown reports whether the view shows one state's counties.
func (v View) IsDrilldown() bool { return v.state != "" }

// State returns the drilled-into state, or "".
func (v View) State() string { return v.state }

// Level returns the granularity the view charts.
func (v View) Level() domain.Level {
	if v.IsDrilldown() {
		return domain.LevelCounties
	}
	return domain.LevelStates
}

func (v View) String() string {
	if v.IsDrilldown() {
		return "drilldown:" + v.state
	}
	return "all"
}

// CanDrill reports whether a cell click may drill down: only from the
// all-states view and never from a testing view.
func (v View) CanDrill(testing bool) bool {
	return !v.IsDrilldown() && !testing
}

// Drill transitions to the county view of state when permitted.
func (v View) Drill(state string, testing bool) (View, bool) {
	if !v.CanDrill(testing) || state == "" {
		return v, false
	}
	return Drilldown(state), true
}

// Back returns to the all-states view.
func (v View) Back() View { return AllGeographies() }

// Select applies an external reselect: SelectAll or a state name.
func (v View) Select(geo string) View {
	if geo == SelectAll || geo == "" {
		return AllGeographies()
	}
	return Drilldown(geo)
}
