package domain

import (
	"sort"
	"time"
)

// Level is the geographic granularity of a dataset.
type Level string

const (
	LevelStates   Level = "state"
	LevelCounties Level = "county"
)

// Group is the date-ordered observations of one geography.
type Group struct {
	Key          string
	GeoID        string
	State        string
	Observations []Observation
	// NoPopulation is set when any observation's geography lacked a
	// population entry; per-capita values are then undefined.
	NoPopulation bool
}

// Last returns the most recent observation.
func (g *Group) Last() (Observation, bool) {
	if len(g.Observations) == 0 {
		return Observation{}, false
	}
	return g.Observations[len(g.Observations)-1], true
}

// Between returns the observations dated within [from, to], inclusive.
func (g *Group) Between(from, to time.Time) []Observation {
	lo := sort.Search(len(g.Observations), func(i int) bool {
		return !g.Observations[i].Date.Before(from)
	})
	hi := sort.Search(len(g.Observations), func(i int) bool {
		return g.Observations[i].Date.After(to)
	})
	if lo >= hi {
		return nil
	}
	return g.Observations[lo:hi]
}

// Dataset is the normalized data for one scope: every state, or every
// county of one state.
type Dataset struct {
	Level Level
	// Scope names the parent state of a county dataset.
	Scope      string
	Groups     []*Group
	Extents    Extents
	FirstDate  time.Time
	LastDate   time.Time
	HasTesting bool
	BuiltAt    time.Time

	// Build statistics.
	RejectedRows      int
	DuplicateTesting  int
	MissingPopulation int
}

// Group returns the group with the given key.
func (d *Dataset) Group(key string) (*Group, bool) {
	for _, g := range d.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return nil, false
}

// Keys returns the group keys sorted by name.
func (d *Dataset) Keys() []string {
	keys := make([]string, 0, len(d.Groups))
	for _, g := range d.Groups {
		keys = append(keys, g.Key)
	}
	sort.Strings(keys)
	return keys
}

// CountyIndex maps a state name to the dataset of its counties.
type CountyIndex map[string]*Dataset

// States returns the indexed state names sorted by name.
func (c CountyIndex) States() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newDataset(level Level, scope string, groups []*Group, withTesting bool) *Dataset {
	ds := &Dataset{
		Level:      level,
		Scope:      scope,
		Groups:     groups,
		Extents:    ComputeExtents(groups, ExtentFields(withTesting)),
		HasTesting: withTesting,
		BuiltAt:    clock.Now(),
	}
	ds.FirstDate, ds.LastDate = dateExtent(groups)
	for _, g := range groups {
		if g.NoPopulation {
			ds.MissingPopulation++
		}
	}
	return ds
}

func dateExtent(groups []*Group) (first, last time.Time) {
	for _, g := range groups {
		for _, o := range g.Observations {
			if first.IsZero() || o.Date.Before(first) {
				first = o.Date
			}
			if last.IsZero() || o.Date.After(last) {
				last = o.Date
			}
		}
	}
	return first, last
}
