package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/covid-grid-service/internal/adapter/http"
	"github.com/couchcryptid/covid-grid-service/internal/dashboard"
	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/interact"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/render"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakeData struct {
	mu       sync.Mutex
	states   *domain.Dataset
	counties domain.CountyIndex
}

func (f *fakeData) States() *domain.Dataset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states
}

func (f *fakeData) Counties() domain.CountyIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counties
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadedData(t *testing.T, withCounties bool) *fakeData {
	t.Helper()
	start := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	var states, counties []domain.CaseRecord
	for i := range 20 {
		d := start.AddDate(0, 0, i).Format(time.DateOnly)
		states = append(states,
			domain.CaseRecord{Date: d, State: "Ohio", FIPS: "39", Cases: fmt.Sprint(10 * (i + 1)), Deaths: "0"},
			domain.CaseRecord{Date: d, State: "Utah", FIPS: "49", Cases: fmt.Sprint(i + 1), Deaths: "0"},
		)
		counties = append(counties,
			domain.CaseRecord{Date: d, State: "Ohio", County: "Franklin", FIPS: "39049", Cases: fmt.Sprint(5 * (i + 1)), Deaths: "0"},
		)
	}
	ds, err := domain.BuildStates(states, domain.Population{"39": 1_000_000}, nil, discardLogger())
	require.NoError(t, err)
	data := &fakeData{states: ds}
	if withCounties {
		idx, err := domain.BuildCounties(counties, domain.Population{}, discardLogger())
		require.NoError(t, err)
		data.counties = idx
	}
	return data
}

type harness struct {
	srv      *httpadapter.Server
	sessions *httpadapter.Sessions
	cookie   *http.Cookie
}

func newHarness(t *testing.T, data dashboard.Datasets, readyErr error) *harness {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	renderer := render.NewRenderer(layout.DefaultProfile())
	clock := clockwork.NewFakeClock()
	sessions, err := httpadapter.NewSessions(4, func(id string) *dashboard.Session {
		return dashboard.NewSession(id, data, renderer, dashboard.Options{
			Width:          1280,
			ResizeThrottle: 100 * time.Millisecond,
			Clock:          clock,
		}, discardLogger(), metrics)
	}, metrics)
	require.NoError(t, err)
	t.Cleanup(sessions.Close)

	api := httpadapter.NewAPI(data, sessions, discardLogger())
	return &harness{
		srv:      httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, api, discardLogger()),
		sessions: sessions,
	}
}

// do sends a request carrying the harness session cookie, adopting any
// cookie the server sets.
func (h *harness) do(method, target string, body url.Values) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = strings.NewReader(body.Encode())
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpadapter.SessionCookie {
			h.cookie = c
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	h := newHarness(t, &fakeData{}, nil)
	rec := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	assert.Equal(t, http.StatusOK, newHarness(t, &fakeData{}, nil).do(http.MethodGet, "/readyz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		newHarness(t, &fakeData{}, errors.New("state data not loaded")).do(http.MethodGet, "/readyz", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, &fakeData{}, nil)
	rec := h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestChart_LoadingReturns503(t *testing.T) {
	h := newHarness(t, &fakeData{}, nil)
	rec := h.do(http.MethodGet, "/api/chart.svg", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, decode(t, rec)["error"], "no dataset")
}

func TestChart_SetsSessionCookie(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	rec := h.do(http.MethodGet, "/api/chart.svg?width=800", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.cookie)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "800", rec.Header().Get("X-Grid-Width"))
	assert.Equal(t, "all", rec.Header().Get("X-Grid-View"))
	assert.Contains(t, rec.Body.String(), "<svg")

	first := h.cookie.Value
	h.do(http.MethodGet, "/api/chart.svg", nil)
	assert.Equal(t, first, h.cookie.Value, "session is reused")
	assert.Equal(t, 1, h.sessions.Len())
}

func TestChart_InvalidWidth(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/chart.svg?width=-5", nil).Code)
}

func TestFilter(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	rec := h.do(http.MethodPost, "/api/filter", url.Values{
		"field":         {"cases"},
		"window":        {"7d"},
		"scale":         {"log"},
		"normalization": {"per-100k"},
		"yaxis":         {"independent"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	filter := rec.Header().Get("X-Grid-Filter")
	assert.Contains(t, filter, "7d")
	assert.Contains(t, filter, "log")
}

func TestFilter_Invalid(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	for _, form := range []url.Values{
		{"field": {"bogus"}},
		{"field": {"positivePct"}},
		{"window": {"3d"}},
		{"scale": {"sqrt"}},
		{"normalization": {"per-capita"}},
		{"yaxis": {"both"}},
	} {
		rec := h.do(http.MethodPost, "/api/filter", form)
		assert.Equal(t, http.StatusBadRequest, rec.Code, form.Encode())
	}
}

func TestFilter_BeforeLoadAccepted(t *testing.T) {
	h := newHarness(t, &fakeData{}, nil)
	rec := h.do(http.MethodPost, "/api/filter", url.Values{"window": {"30d"}})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "pending", decode(t, rec)["status"])
}

func TestResize(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	rec := h.do(http.MethodPost, "/api/resize?width=640", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.InDelta(t, 640, decode(t, rec)["width"], 0)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/resize?width=abc", nil).Code)
}

func TestClick_CountiesLoading(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)

	rec := h.do(http.MethodPost, "/api/cells/0/click?x=10&y=10", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "loading")
}

func TestClick_DrillAndBack(t *testing.T) {
	h := newHarness(t, loadedData(t, true), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)

	rec := h.do(http.MethodPost, "/api/cells/0/click?x=10&y=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "drilldown:Ohio", rec.Header().Get("X-Grid-View"))
	assert.Contains(t, rec.Body.String(), "Franklin")

	rec = h.do(http.MethodPost, "/api/cells/0/click", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "all", rec.Header().Get("X-Grid-View"))
}

func TestClick_BadIndex(t *testing.T) {
	h := newHarness(t, loadedData(t, true), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/cells/abc/click", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/cells/9/click", nil).Code)
}

func TestClick_TouchReturnsTooltip(t *testing.T) {
	h := newHarness(t, loadedData(t, true), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)

	rec := h.do(http.MethodPost, "/api/cells/0/click?x=5&y=5&touch=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tip interact.Tooltip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tip))
	assert.Equal(t, "Ohio", tip.State)
	assert.NotEmpty(t, tip.Rows)
}

func TestTooltipClick_DrillsAfterTap(t *testing.T) {
	h := newHarness(t, loadedData(t, true), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/tooltip/click", nil).Code, "no tooltip shown")

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/cells/0/click?x=5&y=5&touch=true", nil).Code)
	rec := h.do(http.MethodPost, "/api/tooltip/click", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "drilldown:Ohio", rec.Header().Get("X-Grid-View"))
	assert.Contains(t, rec.Body.String(), "Franklin")

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/cells/0/click?x=5&y=5&touch=true", nil).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/tooltip/click", nil).Code, "county tooltips do not drill")
}

func TestTooltipClick_CountiesLoading(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/cells/0/click?x=5&y=5&touch=true", nil).Code)

	rec := h.do(http.MethodPost, "/api/tooltip/click", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestTooltip(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chart.svg", nil).Code)

	rec := h.do(http.MethodGet, "/api/tooltip?cell=0&x=5&y=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ohio", decode(t, rec)["state"])

	rec = h.do(http.MethodGet, "/api/tooltip?x=0&y=0", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "pointer over the y axis gutter")

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/tooltip?cell=0&x=abc", nil).Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/tooltip/hide", nil).Code)
}

func TestSelect(t *testing.T) {
	h := newHarness(t, loadedData(t, true), nil)
	rec := h.do(http.MethodPost, "/api/select?geo=Ohio", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "drilldown:Ohio", rec.Header().Get("X-Grid-View"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/select?geo=Texas", nil).Code)

	rec = h.do(http.MethodPost, "/api/select?geo=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "all", rec.Header().Get("X-Grid-View"))
}

func TestCellPNG(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	rec := h.do(http.MethodGet, "/api/cells/0/chart.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/cells/7/chart.png", nil).Code)
}

func TestStates(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, newHarness(t, &fakeData{}, nil).do(http.MethodGet, "/api/states", nil).Code)

	h := newHarness(t, loadedData(t, false), nil)
	rec := h.do(http.MethodGet, "/api/states", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{"Ohio", "Utah"}, body["states"])
	assert.Equal(t, false, body["counties_loaded"])
}

func TestSessions_EvictionClosesSessions(t *testing.T) {
	h := newHarness(t, loadedData(t, false), nil)
	for range 6 {
		h.cookie = nil
		h.do(http.MethodGet, "/api/chart.svg", nil)
	}
	assert.Equal(t, 4, h.sessions.Len())
}
