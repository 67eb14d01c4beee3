package domain

import (
	"encoding/json"
	"fmt"
)

// CaseRecord is one row of the cumulative case/death CSV. County is empty
// for state-level rows.
type CaseRecord struct {
	Date   string `json:"date"`
	State  string `json:"state"`
	County string `json:"county,omitempty"`
	FIPS   string `json:"fips"`
	Cases  string `json:"cases"`
	Deaths string `json:"deaths"`
}

// PopulationRecord maps a FIPS code to a resident count.
type PopulationRecord struct {
	FIPS string `json:"fips"`
	Pop  string `json:"pop"`
}

// TestingRecord is one row of the daily state testing CSV. Date is YYYYMMDD.
type TestingRecord struct {
	Date                     string `json:"date"`
	FIPS                     string `json:"fips"`
	Positive                 string `json:"positive"`
	Negative                 string `json:"negative"`
	Pending                  string `json:"pending"`
	Total                    string `json:"total"`
	PositiveIncrease         string `json:"positiveIncrease"`
	NegativeIncrease         string `json:"negativeIncrease"`
	TotalTestResultsIncrease string `json:"totalTestResultsIncrease"`
}

// CaseRecordFromRow maps a CSV row keyed by header name.
func CaseRecordFromRow(row map[string]string) CaseRecord {
	return CaseRecord{
		Date:   row["date"],
		State:  row["state"],
		County: row["county"],
		FIPS:   row["fips"],
		Cases:  row["cases"],
		Deaths: row["deaths"],
	}
}

// PopulationRecordFromRow maps a CSV row keyed by header name.
func PopulationRecordFromRow(row map[string]string) PopulationRecord {
	return PopulationRecord{FIPS: row["fips"], Pop: row["pop"]}
}

// TestingRecordFromRow maps a CSV row keyed by header name.
func TestingRecordFromRow(row map[string]string) TestingRecord {
	return TestingRecord{
		Date:                     row["date"],
		FIPS:                     row["fips"],
		Positive:                 row["positive"],
		Negative:                 row["negative"],
		Pending:                  row["pending"],
		Total:                    row["total"],
		PositiveIncrease:         row["positiveIncrease"],
		NegativeIncrease:         row["negativeIncrease"],
		TotalTestResultsIncrease: row["totalTestResultsIncrease"],
	}
}

// RecordKind tags the payload carried by a RawRecord.
type RecordKind string

const (
	KindCases      RecordKind = "cases"
	KindTesting    RecordKind = "testing"
	KindPopulation RecordKind = "population"
)

// RawRecord is the flat JSON envelope published to the source topic. Only
// the columns relevant to Kind are populated.
type RawRecord struct {
	Kind  RecordKind `json:"kind"`
	Level Level      `json:"level"`

	Date   string `json:"date"`
	State  string `json:"state,omitempty"`
	County string `json:"county,omitempty"`
	FIPS   string `json:"fips"`
	Cases  string `json:"cases,omitempty"`
	Deaths string `json:"deaths,omitempty"`
	Pop    string `json:"pop,omitempty"`

	Positive                 string `json:"positive,omitempty"`
	Negative                 string `json:"negative,omitempty"`
	Pending                  string `json:"pending,omitempty"`
	Total                    string `json:"total,omitempty"`
	PositiveIncrease         string `json:"positiveIncrease,omitempty"`
	NegativeIncrease         string `json:"negativeIncrease,omitempty"`
	TotalTestResultsIncrease string `json:"totalTestResultsIncrease,omitempty"`
}

// ParseRawRecord decodes and validates a RawRecord envelope.
func ParseRawRecord(data []byte) (RawRecord, error) {
	var rec RawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RawRecord{}, fmt.Errorf("parse raw record: %w", err)
	}
	switch rec.Kind {
	case KindCases, KindPopulation:
	case KindTesting:
		if rec.Level != LevelStates {
			return RawRecord{}, fmt.Errorf("testing records are only published for %q, got %q", LevelStates, rec.Level)
		}
	default:
		return RawRecord{}, fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	if rec.Level != LevelStates && rec.Level != LevelCounties {
		return RawRecord{}, fmt.Errorf("unknown record level %q", rec.Level)
	}
	return rec, nil
}

// CaseRecord extracts the case/death columns.
func (r RawRecord) CaseRecord() CaseRecord {
	return CaseRecord{Date: r.Date, State: r.State, County: r.County, FIPS: r.FIPS, Cases: r.Cases, Deaths: r.Deaths}
}

// PopulationRecord extracts the population columns.
func (r RawRecord) PopulationRecord() PopulationRecord {
	return PopulationRecord{FIPS: r.FIPS, Pop: r.Pop}
}

// TestingRecord extracts the testing columns.
func (r RawRecord) TestingRecord() TestingRecord {
	return TestingRecord{
		Date:                     r.Date,
		FIPS:                     r.FIPS,
		Positive:                 r.Positive,
		Negative:                 r.Negative,
		Pending:                  r.Pending,
		Total:                    r.Total,
		PositiveIncrease:         r.PositiveIncrease,
		NegativeIncrease:         r.NegativeIncrease,
		TotalTestResultsIncrease: r.TotalTestResultsIncrease,
	}
}
