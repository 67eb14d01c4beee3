package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/covid-grid-service/internal/dashboard"
	"github.com/couchcryptid/covid-grid-service/internal/interact"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
	"github.com/couchcryptid/covid-grid-service/internal/render"
)

// API serves the per-session dashboard endpoints.
type API struct {
	data     dashboard.Datasets
	sessions *Sessions
	logger   *slog.Logger
}

// NewAPI creates the dashboard API over the published datasets.
func NewAPI(data dashboard.Datasets, sessions *Sessions, logger *slog.Logger) *API {
	return &API{data: data, sessions: sessions, logger: logger}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chart.svg", a.handleChart)
	mux.HandleFunc("POST /api/filter", a.handleFilter)
	mux.HandleFunc("POST /api/resize", a.handleResize)
	mux.HandleFunc("POST /api/select", a.handleSelect)
	mux.HandleFunc("POST /api/back", a.handleBack)
	mux.HandleFunc("POST /api/cells/{index}/click", a.handleClick)
	mux.HandleFunc("GET /api/cells/{index}/chart.png", a.handleCellPNG)
	mux.HandleFunc("GET /api/tooltip", a.handleTooltip)
	mux.HandleFunc("POST /api/tooltip/click", a.handleTooltipClick)
	mux.HandleFunc("POST /api/tooltip/hide", a.handleHideTooltip)
	mux.HandleFunc("GET /api/states", a.handleStates)
}

func (a *API) handleChart(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	if v := r.URL.Query().Get("width"); v != "" {
		width, err := positiveInt(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("width: %w", err))
			return
		}
		sess.SetWidth(width)
	}
	frame, err := sess.Frame()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeFrame(w, sess, frame)
}

func (a *API) handleFilter(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f, err := parseFilter(r.Form, sess.Filter())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	frame, err := sess.SetFilter(f)
	if errors.Is(err, render.ErrNoDataset) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending", "filter": f.String()})
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeFrame(w, sess, frame)
}

func (a *API) handleResize(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	width, err := positiveInt(r.URL.Query().Get("width"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("width: %w", err))
		return
	}
	sess.Resize(width)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled", "width": width})
}

func (a *API) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	geo := r.URL.Query().Get("geo")
	if geo == "" {
		geo = interact.SelectAll
	}
	frame, err := sess.Select(geo)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeFrame(w, sess, frame)
}

func (a *API) handleBack(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	frame, err := sess.Back()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeFrame(w, sess, frame)
}

func (a *API) handleClick(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("cell index: %w", err))
		return
	}
	q := r.URL.Query()
	x, y, err := point(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	touch := q.Get("touch") == "true" || q.Get("touch") == "1"

	res, err := sess.Click(index, x, y, touch)
	switch {
	case err != nil:
		a.fail(w, err)
	case res.Frame != nil:
		writeFrame(w, sess, *res.Frame)
	case res.Tooltip != nil:
		writeJSON(w, http.StatusOK, res.Tooltip)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) handleTooltip(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	q := r.URL.Query()
	x, y, err := point(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		tip interact.Tooltip
		ok  bool
	)
	if cell := q.Get("cell"); cell != "" {
		index, convErr := strconv.Atoi(cell)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("cell: %w", convErr))
			return
		}
		tip, ok, err = sess.Tooltip(index, x, y)
	} else {
		tip, ok, err = sess.Hover(x, y)
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, tip)
}

func (a *API) handleTooltipClick(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	frame, err := sess.ClickTooltip()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeFrame(w, sess, frame)
}

func (a *API) handleHideTooltip(w http.ResponseWriter, r *http.Request) {
	a.sessions.Get(w, r).HideTooltip()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCellPNG(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Get(w, r)
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("cell index: %w", err))
		return
	}
	var buf bytes.Buffer
	if err := sess.CellPNG(&buf, index); err != nil {
		if errors.Is(err, render.ErrNoDataset) {
			a.fail(w, err)
			return
		}
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=cell-%d.png", index))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // client disconnects are not actionable
}

func (a *API) handleStates(w http.ResponseWriter, _ *http.Request) {
	states := a.data.States()
	if states == nil {
		a.fail(w, render.ErrNoDataset)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"states":          states.Keys(),
		"counties_loaded": a.data.Counties() != nil,
	})
}

// fail maps dashboard errors to status codes.
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, render.ErrNoDataset), errors.Is(err, dashboard.ErrCountiesLoading):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, dashboard.ErrNotDrillable):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, dashboard.ErrUnknownGeography), errors.Is(err, dashboard.ErrNoCell),
		errors.Is(err, dashboard.ErrNoTooltip):
		writeError(w, http.StatusNotFound, err)
	default:
		a.logger.Error("dashboard request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeFrame(w http.ResponseWriter, sess *dashboard.Session, frame render.Frame) {
	h := w.Header()
	h.Set("Content-Type", "image/svg+xml")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Grid-View", sess.View().String())
	h.Set("X-Grid-Filter", frame.Filter.String())
	h.Set("X-Grid-Width", strconv.Itoa(frame.Width))
	h.Set("X-Grid-Height", strconv.Itoa(frame.Height))
	w.WriteHeader(http.StatusOK)
	w.Write(frame.SVG) //nolint:errcheck // client disconnects are not actionable
}

func parseFilter(form url.Values, base layout.Filter) (layout.Filter, error) {
	return base.Apply(layout.Options{
		Field:         form.Get("field"),
		Window:        form.Get("window"),
		Scale:         form.Get("scale"),
		Normalization: form.Get("normalization"),
		YAxis:         form.Get("yaxis"),
	})
}

func point(q url.Values) (x, y int, err error) {
	if x, err = optionalInt(q.Get("x")); err != nil {
		return 0, 0, fmt.Errorf("x: %w", err)
	}
	if y, err = optionalInt(q.Get("y")); err != nil {
		return 0, 0, fmt.Errorf("y: %w", err)
	}
	return x, y, nil
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
