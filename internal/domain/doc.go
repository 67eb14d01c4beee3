// Package domain models US COVID-19 case, death, and testing counts per
// state and county, normalized into analysis-ready observations.
//
// # Data Sources
//
// Three upstream datasets feed the model:
//
//   - Cases and deaths from the New York Times repository
//     (https://github.com/nytimes/covid-19-data). One row per geography and
//     day, columns date,state,county,fips,cases,deaths. State files omit the
//     county column. Values are cumulative.
//   - Testing results from the COVID Tracking Project daily state CSV. Dates
//     are compact ("20200314") and counts are split into cumulative
//     (positive, negative, pending, total) and incremental (positiveIncrease,
//     negativeIncrease, totalTestResultsIncrease) columns. Empty cells mean
//     "not reported", not zero.
//   - Population per FIPS code, columns fips,pop.
//
// # Conventions
//
// Dates are calendar days at UTC midnight. Rows for one geography must arrive
// sorted by date; grouping never re-sorts.
//
// Daily deltas use a zero baseline: the first observation's new* value
// equals its cumulative value, later ones subtract the immediately preceding
// observation of the same group.
//
// Per-capita values are reported per 100,000 residents and carry the
// "_p100k" suffix in field names (cases_p100k). They exist only when the
// geography's population is known; otherwise the group is flagged
// [Group.NoPopulation].
//
// Percentages (positivePct, newPositivePct, ...) divide a count by the
// matching total (tests or newTests) and are undefined when the total is
// missing or zero.
package domain
