package domain

import (
	"fmt"
	"strings"
)

// Metric identifies a raw or derived count carried by an Observation.
type Metric int

const (
	Cases Metric = iota
	Deaths
	NewCases
	NewDeaths
	Tests
	Positive
	Negative
	Pending
	NewTests
	NewPositive
	NewNegative
	PositivePct
	NegativePct
	PendingPct
	NewPositivePct
	NewNegativePct

	numMetrics
)

// PerCapitaSuffix is appended to a metric name to form its per-100k field name.
const PerCapitaSuffix = "_p100k"

var metricNames = [numMetrics]string{
	Cases:          "cases",
	Deaths:         "deaths",
	NewCases:       "newCases",
	NewDeaths:      "newDeaths",
	Tests:          "tests",
	Positive:       "positive",
	Negative:       "negative",
	Pending:        "pending",
	NewTests:       "newTests",
	NewPositive:    "newPositive",
	NewNegative:    "newNegative",
	PositivePct:    "positivePct",
	NegativePct:    "negativePct",
	PendingPct:     "pendingPct",
	NewPositivePct: "newPositivePct",
	NewNegativePct: "newNegativePct",
}

var metricLabels = [numMetrics]string{
	Cases:          "Total Cases",
	Deaths:         "Total Deaths",
	NewCases:       "New Cases",
	NewDeaths:      "New Deaths",
	Tests:          "Total Tests",
	Positive:       "Total Positive",
	Negative:       "Total Negative",
	Pending:        "Total Pending",
	NewTests:       "New Tests",
	NewPositive:    "New Positive",
	NewNegative:    "New Negative",
	PositivePct:    "Positive %",
	NegativePct:    "Negative %",
	PendingPct:     "Pending %",
	NewPositivePct: "New Positive %",
	NewNegativePct: "New Negative %",
}

// CaseMetrics are the count metrics derived from case/death rows.
var CaseMetrics = []Metric{Cases, Deaths, NewCases, NewDeaths}

// TestingMetrics are the count metrics merged from testing rows.
var TestingMetrics = []Metric{Positive, Negative, Pending, Tests, NewPositive, NewNegative, NewTests}

// SelectableMetrics lists the metrics a chart can be drawn for, in selector order.
var SelectableMetrics = []Metric{
	Cases, Deaths, Tests, Positive, Pending, Negative,
	NewCases, NewDeaths, NewTests, NewPositive, NewNegative,
}

func (m Metric) String() string {
	if m < 0 || m >= numMetrics {
		return fmt.Sprintf("Metric(%d)", int(m))
	}
	return metricNames[m]
}

// Label is the human-readable name shown in tooltips and selectors.
func (m Metric) Label() string {
	if m < 0 || m >= numMetrics {
		return m.String()
	}
	return metricLabels[m]
}

// IsDelta reports whether m is a daily-increment metric.
func (m Metric) IsDelta() bool {
	return strings.HasPrefix(m.String(), "new")
}

// IsPercent reports whether m is a derived ratio rather than a count.
func (m Metric) IsPercent() bool {
	return m >= PositivePct && m <= NewNegativePct
}

// IsTesting reports whether m originates from testing data.
func (m Metric) IsTesting() bool {
	return m >= Tests && m <= NewNegativePct
}

// ParseMetric resolves a metric by its name, e.g. "newCases".
func ParseMetric(name string) (Metric, error) {
	for m, n := range metricNames {
		if n == name {
			return Metric(m), nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", name)
}

// Field is a metric in absolute or per-capita form.
type Field struct {
	Metric    Metric
	PerCapita bool
}

// Abs returns the absolute field for m.
func Abs(m Metric) Field { return Field{Metric: m} }

// PerCapitaOf returns the per-100k field for m.
func PerCapitaOf(m Metric) Field { return Field{Metric: m, PerCapita: true} }

// Name returns the field name following the suffix convention.
func (f Field) Name() string {
	if f.PerCapita {
		return f.Metric.String() + PerCapitaSuffix
	}
	return f.Metric.String()
}

func (f Field) String() string { return f.Name() }

// Label returns the metric label; per-capita fields share their base label.
func (f Field) Label() string { return f.Metric.Label() }

// ParseField resolves a field name such as "cases" or "cases_p100k".
func ParseField(name string) (Field, error) {
	base, perCapita := strings.CutSuffix(name, PerCapitaSuffix)
	m, err := ParseMetric(base)
	if err != nil {
		return Field{}, err
	}
	if perCapita && m.IsPercent() {
		return Field{}, fmt.Errorf("metric %q has no per-capita variant", base)
	}
	return Field{Metric: m, PerCapita: perCapita}, nil
}

// ExtentFields lists the fields tracked by extents: the count metrics of the
// dataset and their per-capita variants.
func ExtentFields(withTesting bool) []Field {
	metrics := append([]Metric(nil), CaseMetrics...)
	if withTesting {
		metrics = append(metrics, TestingMetrics...)
	}
	fields := make([]Field, 0, 2*len(metrics))
	for _, m := range metrics {
		fields = append(fields, Abs(m))
	}
	for _, m := range metrics {
		fields = append(fields, PerCapitaOf(m))
	}
	return fields
}
