package interact

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// NearestIndex returns the index of the midpoint closest to x, or -1 when
// there are none. midpoints must be ascending. Ties go to the lower index.
func NearestIndex(midpoints []float64, x float64) int {
	if len(midpoints) == 0 {
		return -1
	}
	i := sort.SearchFloat64s(midpoints, x)
	if i == 0 {
		return 0
	}
	if i == len(midpoints) {
		return i - 1
	}
	if math.Abs(x-midpoints[i]) < math.Abs(x-midpoints[i-1]) {
		return i
	}
	return i - 1
}

// Resolve maps a cell-local pointer position to the observation of the
// nearest visible day. It reports false when that day has no observation.
func Resolve(x float64, midpoints []float64, days []time.Time, shown []domain.Observation) (domain.Observation, int, bool) {
	i := NearestIndex(midpoints, x)
	if i < 0 || i >= len(days) {
		return domain.Observation{}, 0, false
	}
	day := days[i]
	j := sort.Search(len(shown), func(k int) bool { return !shown[k].Date.Before(day) })
	if j < len(shown) && shown[j].Date.Equal(day) {
		return shown[j], i, true
	}
	return domain.Observation{}, i, false
}
