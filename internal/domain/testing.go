package domain

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// compactDate is the COVID Tracking date layout.
const compactDate = "20060102"

// TestingValues are the testing counts reported for one state and day.
// Unreported counts are absent.
type TestingValues map[Metric]float64

// TestingIndex holds testing values by FIPS code and day.
type TestingIndex struct {
	byGeo map[string]map[int64]TestingValues

	// Rejected counts rows with an invalid date or number.
	Rejected int
	// Duplicates counts rows that replaced an earlier row for the same day.
	Duplicates int
}

// Lookup returns the testing values for geoID on date.
func (t *TestingIndex) Lookup(geoID string, date time.Time) (TestingValues, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.byGeo[geoID][date.Unix()]
	return v, ok
}

// Len returns the number of indexed geography-days.
func (t *TestingIndex) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, days := range t.byGeo {
		n += len(days)
	}
	return n
}

// IndexTesting parses testing records into an index. When two records share
// a FIPS code and day the later one wins; the conflict is logged at error
// level and counted.
func IndexTesting(records []TestingRecord, logger *slog.Logger) *TestingIndex {
	idx := &TestingIndex{byGeo: make(map[string]map[int64]TestingValues)}
	for _, rec := range records {
		date, err := time.Parse(compactDate, strings.TrimSpace(rec.Date))
		if err != nil {
			idx.Rejected++
			logger.Warn("skipping testing row with invalid date", "fips", rec.FIPS, "date", rec.Date)
			continue
		}
		values, err := parseTestingValues(rec)
		if err != nil {
			idx.Rejected++
			logger.Warn("skipping testing row", "fips", rec.FIPS, "date", rec.Date, "error", err)
			continue
		}

		days, ok := idx.byGeo[rec.FIPS]
		if !ok {
			days = make(map[int64]TestingValues)
			idx.byGeo[rec.FIPS] = days
		}
		key := date.Unix()
		if prev, dup := days[key]; dup {
			idx.Duplicates++
			logger.Error("multiple testing rows for same fips and date",
				"fips", rec.FIPS,
				"date", date.Format(time.DateOnly),
				"previous", prev,
				"replacement", values,
			)
		}
		days[key] = values
	}
	return idx
}

func parseTestingValues(rec TestingRecord) (TestingValues, error) {
	columns := []struct {
		metric Metric
		name   string
		raw    string
	}{
		{Positive, "positive", rec.Positive},
		{Negative, "negative", rec.Negative},
		{Pending, "pending", rec.Pending},
		{Tests, "total", rec.Total},
		{NewPositive, "positiveIncrease", rec.PositiveIncrease},
		{NewNegative, "negativeIncrease", rec.NegativeIncrease},
		{NewTests, "totalTestResultsIncrease", rec.TotalTestResultsIncrease},
	}
	values := make(TestingValues, len(columns))
	for _, c := range columns {
		raw := strings.TrimSpace(c.raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", c.name, c.raw)
		}
		values[c.metric] = v
	}
	return values, nil
}
