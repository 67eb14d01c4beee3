package domain

// Extent is a running [Min, Max] range. Min starts at zero so the floor
// always includes zero; Max is undefined until a value is seen.
type Extent struct {
	Min    float64
	Max    float64
	HasMax bool
}

// Include returns e widened to cover v.
func (e Extent) Include(v float64) Extent {
	if v < e.Min {
		e.Min = v
	}
	if !e.HasMax || v > e.Max {
		e.Max = v
		e.HasMax = true
	}
	return e
}

// Contains reports whether v lies within the extent.
func (e Extent) Contains(v float64) bool {
	return e.HasMax && v >= e.Min && v <= e.Max
}

// Extents maps fields to their accumulated range over a dataset scope.
type Extents map[Field]Extent

// Get returns the extent of f, or the empty [0, undefined] extent.
func (e Extents) Get(f Field) Extent {
	return e[f]
}

// ComputeExtents scans every observation of groups and accumulates the
// range of each field that has a defined value.
func ComputeExtents(groups []*Group, fields []Field) Extents {
	ext := make(Extents, len(fields))
	for _, f := range fields {
		ext[f] = Extent{}
	}
	for _, g := range groups {
		for _, o := range g.Observations {
			for _, f := range fields {
				if v, ok := o.Value(f); ok {
					ext[f] = ext[f].Include(v)
				}
			}
		}
	}
	return ext
}

// ExtentOf returns the range of f over observations.
func ExtentOf(observations []Observation, f Field) Extent {
	var e Extent
	for _, o := range observations {
		if v, ok := o.Value(f); ok {
			e = e.Include(v)
		}
	}
	return e
}
