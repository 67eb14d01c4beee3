package layout

import (
	"fmt"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Window selects how many trailing days a chart shows.
type Window string

const (
	Window7d  Window = "7d"
	Window14d Window = "14d"
	Window30d Window = "30d"
	WindowAll Window = "all"
)

// Days returns the fixed day count, or 0 for WindowAll.
func (w Window) Days() int {
	switch w {
	case Window7d:
		return 7
	case Window14d:
		return 14
	case Window30d:
		return 30
	default:
		return 0
	}
}

// ParseWindow resolves a window name.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case Window7d, Window14d, Window30d, WindowAll:
		return w, nil
	}
	return "", fmt.Errorf("unknown time window %q", s)
}

// Filter is the immutable set of chart options. The With methods return
// modified copies.
type Filter struct {
	Metric    domain.Metric
	Window    Window
	Log       bool
	PerCapita bool
	SharedY   bool
}

// DefaultFilter shows new cases over two weeks on a shared linear axis.
func DefaultFilter() Filter {
	return Filter{
		Metric:  domain.NewCases,
		Window:  Window14d,
		SharedY: true,
	}
}

// WithMetric selects a metric. Switching metrics resets the scale to linear.
func (f Filter) WithMetric(m domain.Metric) Filter {
	f.Metric = m
	f.Log = false
	return f
}

// WithWindow selects the time window.
func (f Filter) WithWindow(w Window) Filter {
	f.Window = w
	return f
}

// WithLog selects a log scale. Testing views keep the linear scale.
func (f Filter) WithLog(log bool) Filter {
	f.Log = log && !f.Testing()
	return f
}

// WithPerCapita toggles per-100k normalization.
func (f Filter) WithPerCapita(on bool) Filter {
	f.PerCapita = on
	return f
}

// WithSharedY toggles one y-scale for every cell.
func (f Filter) WithSharedY(on bool) Filter {
	f.SharedY = on
	return f
}

// Field returns the active field, per-capita when normalizing.
func (f Filter) Field() domain.Field {
	return domain.Field{Metric: f.Metric, PerCapita: f.PerCapita}
}

// Testing reports whether the view charts test results as stacked
// positive/negative layers.
func (f Filter) Testing() bool {
	return f.Metric == domain.Tests || f.Metric == domain.NewTests
}

// UseLog reports whether the y-scale is logarithmic.
func (f Filter) UseLog() bool {
	return f.Log && !f.Testing()
}

// StackFields returns the fields drawn as bar layers, bottom first.
func (f Filter) StackFields() []domain.Field {
	if !f.Testing() {
		return []domain.Field{f.Field()}
	}
	pos, neg := domain.Positive, domain.Negative
	if f.Metric == domain.NewTests {
		pos, neg = domain.NewPositive, domain.NewNegative
	}
	return []domain.Field{
		{Metric: pos, PerCapita: f.PerCapita},
		{Metric: neg, PerCapita: f.PerCapita},
	}
}

func (f Filter) String() string {
	scale := "linear"
	if f.UseLog() {
		scale = "log"
	}
	y := "independent"
	if f.SharedY {
		y = "shared"
	}
	return fmt.Sprintf("%s/%s/%s/%s", f.Field(), f.Window, scale, y)
}

// Options are filter settings in their external string form, as sent by
// the filter controls. Empty fields leave the current value unchanged.
type Options struct {
	Field         string // metric name, e.g. "newCases"
	Window        string // 7d, 14d, 30d, all
	Scale         string // linear, log
	Normalization string // absolute, per-100k
	YAxis         string // shared, independent
}

// Apply returns f with opts applied. The metric is applied first since
// switching metrics resets the scale. On error f is returned unchanged.
func (f Filter) Apply(opts Options) (Filter, error) {
	out := f
	if opts.Field != "" {
		m, err := domain.ParseMetric(opts.Field)
		if err != nil {
			return f, err
		}
		if m.IsPercent() {
			return f, fmt.Errorf("metric %q is not selectable", opts.Field)
		}
		out = out.WithMetric(m)
	}
	if opts.Window != "" {
		w, err := ParseWindow(opts.Window)
		if err != nil {
			return f, err
		}
		out = out.WithWindow(w)
	}
	switch opts.Scale {
	case "":
	case "linear":
		out = out.WithLog(false)
	case "log":
		out = out.WithLog(true)
	default:
		return f, fmt.Errorf("unknown scale %q", opts.Scale)
	}
	switch opts.Normalization {
	case "":
	case "absolute":
		out = out.WithPerCapita(false)
	case "per-100k":
		out = out.WithPerCapita(true)
	default:
		return f, fmt.Errorf("unknown normalization %q", opts.Normalization)
	}
	switch opts.YAxis {
	case "":
	case "shared":
		out = out.WithSharedY(true)
	case "independent":
		out = out.WithSharedY(false)
	default:
		return f, fmt.Errorf("unknown y axis mode %q", opts.YAxis)
	}
	return out, nil
}
