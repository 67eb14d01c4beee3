package domain

import (
	"encoding/json"
	"time"
)

// Observation is one geography's counts for one calendar day. Values are
// set once during normalization; With returns a modified copy.
type Observation struct {
	Date       time.Time
	GeoID      string
	State      string
	County     string
	Population int

	abs    [numMetrics]float64
	pc     [numMetrics]float64
	hasAbs uint32
	hasPC  uint32
}

// Value returns the value of f and whether it is defined.
func (o Observation) Value(f Field) (float64, bool) {
	if f.Metric < 0 || f.Metric >= numMetrics {
		return 0, false
	}
	bit := uint32(1) << f.Metric
	if f.PerCapita {
		return o.pc[f.Metric], o.hasPC&bit != 0
	}
	return o.abs[f.Metric], o.hasAbs&bit != 0
}

// Has reports whether f is defined.
func (o Observation) Has(f Field) bool {
	_, ok := o.Value(f)
	return ok
}

// With returns a copy of o with f set to v.
func (o Observation) With(f Field, v float64) Observation {
	bit := uint32(1) << f.Metric
	if f.PerCapita {
		o.pc[f.Metric] = v
		o.hasPC |= bit
	} else {
		o.abs[f.Metric] = v
		o.hasAbs |= bit
	}
	return o
}

// SameDay reports whether o and other describe the same geography and date.
func (o Observation) SameDay(other Observation) bool {
	return o.GeoID == other.GeoID && o.State == other.State && o.County == other.County && o.Date.Equal(other.Date)
}

// Values returns all defined fields keyed by field name.
func (o Observation) Values() map[string]float64 {
	out := make(map[string]float64)
	for m := Metric(0); m < numMetrics; m++ {
		if v, ok := o.Value(Abs(m)); ok {
			out[Abs(m).Name()] = v
		}
		if v, ok := o.Value(PerCapitaOf(m)); ok {
			out[PerCapitaOf(m).Name()] = v
		}
	}
	return out
}

type observationJSON struct {
	Date       string             `json:"date"`
	GeoID      string             `json:"geo_id"`
	State      string             `json:"state"`
	County     string             `json:"county,omitempty"`
	Population int                `json:"population,omitempty"`
	Values     map[string]float64 `json:"values"`
}

// MarshalJSON encodes the observation with its defined values keyed by field name.
func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal(observationJSON{
		Date:       o.Date.Format(time.DateOnly),
		GeoID:      o.GeoID,
		State:      o.State,
		County:     o.County,
		Population: o.Population,
		Values:     o.Values(),
	})
}
