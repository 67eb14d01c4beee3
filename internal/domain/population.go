package domain

import (
	"log/slog"
	"strconv"
	"strings"
)

// Population maps a FIPS code to its resident count. Only positive counts
// are stored, so a missing key means the population is unknown.
type Population map[string]int

// Lookup returns the population of geoID.
func (p Population) Lookup(geoID string) (int, bool) {
	n, ok := p[geoID]
	return n, ok && n > 0
}

// ParsePopulation builds a Population table from raw records. Unparsable or
// non-positive entries are skipped and reported in the returned count.
func ParsePopulation(records []PopulationRecord, logger *slog.Logger) (Population, int) {
	pop := make(Population, len(records))
	skipped := 0
	for _, rec := range records {
		n, err := strconv.Atoi(strings.TrimSpace(rec.Pop))
		if err != nil || n <= 0 {
			skipped++
			logger.Debug("skipping population entry", "fips", rec.FIPS, "pop", rec.Pop)
			continue
		}
		pop[rec.FIPS] = n
	}
	return pop, skipped
}
