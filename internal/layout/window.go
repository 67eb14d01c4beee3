package layout

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// VisibleWindow returns the calendar days shown for w, ascending and ending
// at last. WindowAll spans first through last inclusive.
func VisibleWindow(first, last time.Time, w Window) []time.Time {
	if last.IsZero() {
		return nil
	}
	n := w.Days()
	if n == 0 {
		n = int(last.Sub(first).Hours()/24) + 1
		if n < 1 {
			n = 1
		}
	}
	days := make([]time.Time, n)
	for i := range days {
		days[i] = last.AddDate(0, 0, i-(n-1))
	}
	return days
}

// Ranked is a group placed in render order with the key it was sorted by.
type Ranked struct {
	Group     *domain.Group
	Rank      int
	SortValue float64
}

// SortValue is the ranking key of g over days. Delta fields sum their values
// in the window; cumulative fields take the last defined value in the window,
// or -Inf when none is.
func SortValue(g *domain.Group, f domain.Field, days []time.Time) float64 {
	if len(days) == 0 {
		return math.Inf(-1)
	}
	shown := g.Between(days[0], days[len(days)-1])
	if f.Metric.IsDelta() {
		sum := 0.0
		for _, o := range shown {
			if v, ok := o.Value(f); ok {
				sum += v
			}
		}
		return sum
	}
	for i := len(shown) - 1; i >= 0; i-- {
		if v, ok := shown[i].Value(f); ok {
			return v
		}
	}
	return math.Inf(-1)
}

// Rank orders groups descending by SortValue. Ties keep input order. Ranks
// are 1-based.
func Rank(groups []*domain.Group, f domain.Field, days []time.Time) []Ranked {
	out := make([]Ranked, len(groups))
	for i, g := range groups {
		out[i] = Ranked{Group: g, SortValue: SortValue(g, f, days)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortValue > out[j].SortValue
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
