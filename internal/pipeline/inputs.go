package pipeline

import (
	"slices"
	"sync"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Inputs accumulates the raw records each dataset level is built from. The
// initial CSV load sets them; refresh records from Kafka are merged in.
type Inputs struct {
	mu         sync.Mutex
	states     caseRows
	counties   caseRows
	statePop   []domain.PopulationRecord
	countyPop  []domain.PopulationRecord
	testing    []domain.TestingRecord
	hasTesting bool
}

// Changes reports which datasets a merge affected.
type Changes struct {
	States bool
	// CountyStates names the states whose county datasets need a rebuild.
	CountyStates map[string]bool
	// AllCounties is set when a county population changed; any state may
	// be affected.
	AllCounties bool
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return !c.States && !c.AllCounties && len(c.CountyStates) == 0
}

// NewInputs returns empty inputs.
func NewInputs() *Inputs { return &Inputs{} }

// SetStates replaces the state-level inputs. A nil testing slice means
// testing data is unavailable.
func (in *Inputs) SetStates(cases []domain.CaseRecord, pop []domain.PopulationRecord, testing []domain.TestingRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.states.reset(cases, stateRowKey)
	in.statePop = slices.Clone(pop)
	in.testing = slices.Clone(testing)
	in.hasTesting = testing != nil
}

// SetCounties replaces the county-level inputs.
func (in *Inputs) SetCounties(cases []domain.CaseRecord, pop []domain.PopulationRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.counties.reset(cases, countyRowKey)
	in.countyPop = slices.Clone(pop)
}

// Merge folds refresh records into the inputs. A case row for a geography
// and date already present replaces it; new rows are appended and kept in
// date order.
func (in *Inputs) Merge(records []domain.RawRecord) Changes {
	in.mu.Lock()
	defer in.mu.Unlock()

	ch := Changes{CountyStates: make(map[string]bool)}
	for _, rec := range records {
		switch {
		case rec.Kind == domain.KindCases && rec.Level == domain.LevelStates:
			in.states.upsert(rec.CaseRecord(), stateRowKey)
			ch.States = true
		case rec.Kind == domain.KindCases && rec.Level == domain.LevelCounties:
			in.counties.upsert(rec.CaseRecord(), countyRowKey)
			ch.CountyStates[rec.State] = true
		case rec.Kind == domain.KindTesting:
			in.testing = append(in.testing, rec.TestingRecord())
			in.hasTesting = true
			ch.States = true
		case rec.Kind == domain.KindPopulation && rec.Level == domain.LevelStates:
			in.statePop = append(in.statePop, rec.PopulationRecord())
			ch.States = true
		case rec.Kind == domain.KindPopulation && rec.Level == domain.LevelCounties:
			in.countyPop = append(in.countyPop, rec.PopulationRecord())
			ch.AllCounties = true
		}
	}
	in.states.sortIfDirty()
	in.counties.sortIfDirty()
	return ch
}

// StateInputs returns copies of the state-level inputs. testing is nil
// when no testing data has been supplied.
func (in *Inputs) StateInputs() (cases []domain.CaseRecord, pop []domain.PopulationRecord, testing []domain.TestingRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.hasTesting {
		testing = slices.Clone(in.testing)
		if testing == nil {
			testing = []domain.TestingRecord{}
		}
	}
	return slices.Clone(in.states.rows), slices.Clone(in.statePop), testing
}

// CountyInputs returns copies of the county-level inputs.
func (in *Inputs) CountyInputs() ([]domain.CaseRecord, []domain.PopulationRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.counties.rows), slices.Clone(in.countyPop)
}

func stateRowKey(r domain.CaseRecord) string  { return r.State + "|" + r.Date }
func countyRowKey(r domain.CaseRecord) string { return r.State + "|" + r.County + "|" + r.Date }

// caseRows keeps rows in input order with an index for upserts.
type caseRows struct {
	rows  []domain.CaseRecord
	index map[string]int
	dirty bool
	key   func(domain.CaseRecord) string
}

func (c *caseRows) reset(rows []domain.CaseRecord, key func(domain.CaseRecord) string) {
	c.rows = slices.Clone(rows)
	c.key = key
	c.reindex()
	c.dirty = false
}

func (c *caseRows) reindex() {
	c.index = make(map[string]int, len(c.rows))
	for i, r := range c.rows {
		c.index[c.key(r)] = i
	}
}

func (c *caseRows) upsert(r domain.CaseRecord, key func(domain.CaseRecord) string) {
	if c.key == nil {
		c.key = key
		c.index = make(map[string]int)
	}
	k := c.key(r)
	if i, ok := c.index[k]; ok {
		c.rows[i] = r
		return
	}
	if n := len(c.rows); n > 0 && r.Date < c.rows[n-1].Date {
		c.dirty = true
	}
	c.index[k] = len(c.rows)
	c.rows = append(c.rows, r)
}

// sortIfDirty restores date order. ISO dates sort lexically; the stable
// sort keeps first-appearance order within a day.
func (c *caseRows) sortIfDirty() {
	if !c.dirty {
		return
	}
	slices.SortStableFunc(c.rows, func(a, b domain.CaseRecord) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	c.reindex()
	c.dirty = false
}
