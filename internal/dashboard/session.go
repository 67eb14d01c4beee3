// Package dashboard holds the per-client Session: the filter, the current
// view, the viewport width, and the last rendered frame, with the
// transitions between them.
package dashboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/interact"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/render"
)

var (
	// ErrCountiesLoading rejects a drill-down or reselect before county
	// data has loaded. The view is left unchanged.
	ErrCountiesLoading = errors.New("county data is still loading")
	// ErrNotDrillable rejects a click on a cell of a view without a
	// drill-down target.
	ErrNotDrillable = errors.New("view does not drill down")
	// ErrUnknownGeography rejects a reselect or drill-down to a state with
	// no county data.
	ErrUnknownGeography = errors.New("unknown geography")
	// ErrNoCell is returned for a cell index outside the current frame.
	ErrNoCell = errors.New("no such cell")
	// ErrNoTooltip rejects a tooltip click while no tooltip is shown.
	ErrNoTooltip = errors.New("no tooltip shown")
)

// Datasets supplies the currently published datasets. Either may be nil
// while loading.
type Datasets interface {
	States() *domain.Dataset
	Counties() domain.CountyIndex
}

// Options configures a Session.
type Options struct {
	Width          int
	ResizeThrottle time.Duration
	Clock          clockwork.Clock
}

// Session is one client's dashboard state. All methods are safe for
// concurrent use; operations are serialized so the session behaves as a
// single-threaded UI would.
type Session struct {
	id       string
	data     Datasets
	renderer *render.Renderer
	logger   *slog.Logger
	metrics  *observability.Metrics
	resize   *interact.Throttle[int]

	mu       sync.Mutex
	filter   layout.Filter
	view     interact.View
	width    int
	frame    *render.Frame
	source   *domain.Dataset
	dirty    bool
	tooltip  interact.TooltipState
	lastSeen time.Time
	clock    clockwork.Clock
}

// NewSession creates a session in the initial state: default filter, the
// all-states view, and no frame until the first render.
func NewSession(id string, data Datasets, renderer *render.Renderer, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Session{
		id:       id,
		data:     data,
		renderer: renderer,
		logger:   logger.With("session", id),
		metrics:  metrics,
		filter:   layout.DefaultFilter(),
		width:    opts.Width,
		dirty:    true,
		clock:    opts.Clock,
		lastSeen: opts.Clock.Now(),
	}
	s.resize = interact.NewThrottle(opts.Clock, opts.ResizeThrottle, s.applyResize)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Filter returns the current filter.
func (s *Session) Filter() layout.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// View returns the current view.
func (s *Session) View() interact.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Width returns the viewport width the next render uses.
func (s *Session) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// LastSeen returns when the session last handled a request.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close cancels any pending resize render.
func (s *Session) Close() { s.resize.Stop() }

// Frame returns the current frame, rendering first when the state or the
// published dataset changed since the last render.
func (s *Session) Frame() (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.frame != nil && !s.dirty && s.source == s.scope() {
		return *s.frame, nil
	}
	return s.renderLocked()
}

// SetFilter replaces the filter. When the dataset of the current view is
// loaded the grid is rendered immediately; otherwise the change is recorded
// and ErrNoDataset is returned.
func (s *Session) SetFilter(f layout.Filter) (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.filter = f
	s.dirty = true
	s.tooltip.Hide()
	return s.renderLocked()
}

// SetWidth applies a viewport width without throttling. The next Frame
// renders at the new width.
func (s *Session) SetWidth(width int) {
	if width <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if width != s.width {
		s.width = width
		s.dirty = true
		s.tooltip.Hide()
	}
}

// Resize records a viewport width. Bursts are coalesced by the throttle and
// only the latest width is rendered.
func (s *Session) Resize(width int) {
	if width <= 0 {
		return
	}
	s.resize.Trigger(width)
}

// ResizePending reports whether a throttled resize has not rendered yet.
func (s *Session) ResizePending() bool { return s.resize.Pending() }

func (s *Session) applyResize(width int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.width && !s.dirty {
		return
	}
	s.width = width
	s.dirty = true
	s.tooltip.Hide()
	if _, err := s.renderLocked(); err != nil && !errors.Is(err, render.ErrNoDataset) {
		s.logger.Error("resize render failed", "width", width, "error", err)
	}
}

// Select is the external reselect: interact.SelectAll returns to the
// all-states view, a state name drills into its counties.
func (s *Session) Select(geo string) (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	next := s.view.Select(geo)
	if next.IsDrilldown() {
		if err := s.checkCounties(next.State()); err != nil {
			return render.Frame{}, err
		}
	}
	return s.transition(next)
}

// Back returns to the all-states view.
func (s *Session) Back() (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.transition(s.view.Back())
}

// ClickResult is the outcome of a cell click: a new frame after a
// drill-down, or a tooltip for a touch tap.
type ClickResult struct {
	Frame   *render.Frame
	Tooltip *interact.Tooltip
}

// Click handles a click or tap on cell index at cell-local (x, y). A mouse
// click drills into the cell's counties when the view permits. A touch tap
// resolves a tooltip instead.
func (s *Session) Click(index, x, y int, touch bool) (ClickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	cell, err := s.cell(index)
	if err != nil {
		return ClickResult{}, err
	}
	if touch {
		tip, ok := s.resolveLocked(cell, x, y)
		if !ok {
			return ClickResult{}, nil
		}
		return ClickResult{Tooltip: &tip}, nil
	}

	if !s.frame.Drillable() {
		s.metrics.Drilldowns.WithLabelValues("rejected").Inc()
		return ClickResult{}, ErrNotDrillable
	}
	frame, err := s.drillLocked(cell.Key)
	if err != nil {
		return ClickResult{}, err
	}
	return ClickResult{Frame: &frame}, nil
}

// ClickTooltip handles a click or tap on the shown tooltip. A state-level
// tooltip drills into that state's counties under the same rules as a cell
// click; a county-level tooltip is not drillable.
func (s *Session) ClickTooltip() (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	obs, ok := s.tooltip.Current()
	if !ok {
		return render.Frame{}, ErrNoTooltip
	}
	if obs.County != "" {
		s.metrics.Drilldowns.WithLabelValues("rejected").Inc()
		return render.Frame{}, ErrNotDrillable
	}
	return s.drillLocked(obs.State)
}

func (s *Session) drillLocked(state string) (render.Frame, error) {
	next, ok := s.view.Drill(state, s.filter.Testing())
	if !ok {
		s.metrics.Drilldowns.WithLabelValues("rejected").Inc()
		return render.Frame{}, ErrNotDrillable
	}
	if err := s.checkCounties(state); err != nil {
		return render.Frame{}, err
	}
	frame, err := s.transition(next)
	if err != nil {
		return render.Frame{}, err
	}
	s.metrics.Drilldowns.WithLabelValues("accepted").Inc()
	return frame, nil
}

// Tooltip resolves the pointer at cell-local (x, y) of cell index. It
// reports false, hiding any tooltip, when the nearest day has no
// observation.
func (s *Session) Tooltip(index, x, y int) (interact.Tooltip, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	cell, err := s.cell(index)
	if err != nil {
		return interact.Tooltip{}, false, err
	}
	tip, ok := s.resolveLocked(cell, x, y)
	return tip, ok, nil
}

// Hover resolves a pointer given in canvas coordinates.
func (s *Session) Hover(x, y int) (interact.Tooltip, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.frame == nil {
		return interact.Tooltip{}, false, render.ErrNoDataset
	}
	if s.frame.Unavailable {
		return interact.Tooltip{}, false, nil
	}
	index, lx, ly, ok := s.frame.Plan.Grid.CellAt(x, y)
	if !ok || index >= len(s.frame.Cells) {
		s.tooltip.Hide()
		return interact.Tooltip{}, false, nil
	}
	tip, ok := s.resolveLocked(s.frame.Cells[index], lx, ly)
	return tip, ok, nil
}

// HideTooltip hides the tooltip.
func (s *Session) HideTooltip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tooltip.Hide()
}

// CellPNG writes cell index of the current view as a PNG bar chart.
func (s *Session) CellPNG(w io.Writer, index int) error {
	s.mu.Lock()
	ds := s.scope()
	f, width := s.filter, s.width
	s.mu.Unlock()
	if ds == nil {
		return render.ErrNoDataset
	}
	if err := s.renderer.RenderCellPNG(w, ds, f, width, index); err != nil {
		return fmt.Errorf("cell png: %w", err)
	}
	return nil
}

func (s *Session) resolveLocked(cell render.Cell, x, y int) (interact.Tooltip, bool) {
	obs, day, ok := interact.Resolve(float64(x), cell.Midpoints, cell.Days, cell.Shown)
	if !ok {
		s.metrics.TooltipResolutions.WithLabelValues("miss").Inc()
		s.tooltip.Hide()
		return interact.Tooltip{}, false
	}
	s.metrics.TooltipResolutions.WithLabelValues("hit").Inc()
	pointer := interact.Pointer{X: cell.X + x, Y: cell.Y + y}
	built := interact.BuildTooltip(obs, s.filter, s.frame.Level, pointer, s.width)
	tip, _ := s.tooltip.Show(obs, func() interact.Tooltip { return built })
	// Content is kept while the pointer stays over the same day; the
	// position always follows the pointer.
	tip.Placement = built.Placement
	tip.Crosshair = cell.Crosshair(day)
	return tip, true
}

func (s *Session) cell(index int) (render.Cell, error) {
	if s.frame == nil {
		return render.Cell{}, render.ErrNoDataset
	}
	if index < 0 || index >= len(s.frame.Cells) {
		return render.Cell{}, ErrNoCell
	}
	return s.frame.Cells[index], nil
}

func (s *Session) checkCounties(state string) error {
	counties := s.data.Counties()
	if counties == nil {
		s.metrics.Drilldowns.WithLabelValues("loading").Inc()
		return ErrCountiesLoading
	}
	if _, ok := counties[state]; !ok {
		s.metrics.Drilldowns.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownGeography, state)
	}
	return nil
}

func (s *Session) transition(next interact.View) (render.Frame, error) {
	if next != s.view {
		s.logger.Debug("view changed", "from", s.view.String(), "to", next.String())
	}
	s.view = next
	s.dirty = true
	s.tooltip.Hide()
	return s.renderLocked()
}

// scope returns the dataset the current view charts.
func (s *Session) scope() *domain.Dataset {
	if !s.view.IsDrilldown() {
		return s.data.States()
	}
	counties := s.data.Counties()
	if counties == nil {
		return nil
	}
	return counties[s.view.State()]
}

func (s *Session) renderLocked() (render.Frame, error) {
	ds := s.scope()
	if ds == nil {
		return render.Frame{}, render.ErrNoDataset
	}
	start := time.Now()
	frame, err := s.renderer.Render(ds, s.filter, s.width, s.view.Level())
	if err != nil {
		return render.Frame{}, err
	}
	s.metrics.Renders.WithLabelValues(string(s.view.Level())).Inc()
	s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	s.frame = &frame
	s.source = ds
	s.dirty = false
	return frame, nil
}

func (s *Session) touch() { s.lastSeen = s.clock.Now() }
