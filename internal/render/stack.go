package render

import "github.com/couchcryptid/covid-grid-service/internal/domain"

// Segment is one layer of a stacked bar.
type Segment struct {
	Field   domain.Field
	Bottom  float64
	Top     float64
	Defined bool
}

// Stack layers the values of fields on o cumulatively: each segment starts
// where the previous one ended. Undefined values contribute nothing and are
// not drawn.
func Stack(o domain.Observation, fields []domain.Field) []Segment {
	segs := make([]Segment, len(fields))
	base := 0.0
	for i, f := range fields {
		v, ok := o.Value(f)
		if !ok {
			segs[i] = Segment{Field: f, Bottom: base, Top: base}
			continue
		}
		segs[i] = Segment{Field: f, Bottom: base, Top: base + v, Defined: true}
		base += v
	}
	return segs
}

// StackTop returns the top of the highest defined segment.
func StackTop(segs []Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].Top
}
