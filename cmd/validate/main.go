// Command validate loads COVID source CSVs through the service loader and
// checks the normalized datasets for integrity: parse rejections, date
// order, delta derivation, per-capita normalization, extent coverage, and
// state/county consistency.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -states internal/pipeline/testdata/us-states.csv \
//	  -state-pop internal/pipeline/testdata/pop-states.csv \
//	  -counties internal/pipeline/testdata/us-counties.csv \
//	  -county-pop internal/pipeline/testdata/pop-counties.csv \
//	  -testing internal/pipeline/testdata/testing.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-grid-service/internal/adapter/source"
	"github.com/couchcryptid/covid-grid-service/internal/config"
	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/pipeline"
)

// tolerance bounds float drift when re-deriving per-capita values.
const tolerance = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	var sources config.Sources
	flag.StringVar(&sources.States, "states", "", "state case CSV (file or URL)")
	flag.StringVar(&sources.StatePopulation, "state-pop", "", "state population CSV")
	flag.StringVar(&sources.Counties, "counties", "", "county case CSV (optional)")
	flag.StringVar(&sources.CountyPopulation, "county-pop", "", "county population CSV, required with -counties")
	flag.StringVar(&sources.Testing, "testing", "", "state testing CSV (optional)")
	timeout := flag.Duration("timeout", 2*time.Minute, "load timeout")
	verbose := flag.Bool("v", false, "log loader warnings")
	flag.Parse()

	if sources.States == "" || sources.StatePopulation == "" || (sources.Counties != "" && sources.CountyPopulation == "") {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(sources, *timeout, *verbose); code != 0 {
		os.Exit(code)
	}
}

func run(sources config.Sources, timeout time.Duration, verbose bool) int {
	fmt.Println("=== COVID Dataset Integrity Validation ===")
	fmt.Println()

	states, counties, err := load(sources, timeout, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	datasets := []*domain.Dataset{states}
	for _, name := range counties.States() {
		datasets = append(datasets, counties[name])
	}

	phases := []*phase{
		validateParsing(datasets),
		validateDateOrder(datasets),
		validateDeltas(datasets),
		validatePerCapita(datasets),
		validateExtents(datasets),
		validateHierarchy(states, counties),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Groups: %d states, %d counties in %d states; %d observations; testing %v\n",
		len(states.Groups), countGroups(counties), len(counties), countObservations(datasets), states.HasTesting)
	fmt.Printf("Dates: %s to %s\n", states.FirstDate.Format(time.DateOnly), states.LastDate.Format(time.DateOnly))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func load(sources config.Sources, timeout time.Duration, verbose bool) (*domain.Dataset, domain.CountyIndex, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(w, nil))
	metrics := observability.NewMetricsForTesting()
	client := source.NewClient(timeout, metrics, logger)
	inputs := pipeline.NewInputs()
	store := pipeline.NewStore()
	builder := pipeline.NewBuilder(inputs, store, logger, metrics)
	loader := pipeline.NewLoader(client, client, sources, inputs, builder, clockwork.NewRealClock(), 0, logger)

	if err := loader.LoadStates(ctx); err != nil {
		return nil, nil, err
	}
	counties := domain.CountyIndex{}
	if sources.Counties != "" {
		if err := loader.LoadCounties(ctx); err != nil {
			return nil, nil, err
		}
		counties = store.Counties()
	}
	return store.States(), counties, nil
}

// ── Phase 1: parsing ──

func validateParsing(datasets []*domain.Dataset) *phase {
	p := &phase{name: "Phase 1: Source parsing"}
	fmt.Printf("Running %s...\n", p.name)
	for _, ds := range datasets {
		if ds.RejectedRows > 0 {
			p.errorf("%s: %d rows rejected", scopeName(ds), ds.RejectedRows)
		}
		if ds.DuplicateTesting > 0 {
			p.errorf("%s: %d duplicate testing rows", scopeName(ds), ds.DuplicateTesting)
		}
		if ds.MissingPopulation > 0 {
			fmt.Printf("  note: %s: %d groups without population\n", scopeName(ds), ds.MissingPopulation)
		}
	}
	return p
}

// ── Phase 2: date order ──

func validateDateOrder(datasets []*domain.Dataset) *phase {
	p := &phase{name: "Phase 2: Date order"}
	fmt.Printf("Running %s...\n", p.name)
	for _, ds := range datasets {
		for _, g := range ds.Groups {
			for i := 1; i < len(g.Observations); i++ {
				prev, cur := g.Observations[i-1].Date, g.Observations[i].Date
				if !cur.After(prev) {
					p.errorf("%s/%s: %s follows %s", scopeName(ds), g.Key,
						cur.Format(time.DateOnly), prev.Format(time.DateOnly))
				}
			}
		}
	}
	return p
}

// ── Phase 3: deltas ──

func validateDeltas(datasets []*domain.Dataset) *phase {
	p := &phase{name: "Phase 3: Delta derivation"}
	fmt.Printf("Running %s...\n", p.name)
	pairs := [][2]domain.Metric{{domain.Cases, domain.NewCases}, {domain.Deaths, domain.NewDeaths}}
	for _, ds := range datasets {
		for _, g := range ds.Groups {
			for i, obs := range g.Observations {
				for _, pair := range pairs {
					cur, _ := obs.Value(domain.Abs(pair[0]))
					want := cur
					if i > 0 {
						before, _ := g.Observations[i-1].Value(domain.Abs(pair[0]))
						want = cur - before
					}
					got, ok := obs.Value(domain.Abs(pair[1]))
					if !ok || got != want {
						p.errorf("%s/%s %s: %s = %v, want %v", scopeName(ds), g.Key,
							obs.Date.Format(time.DateOnly), pair[1], got, want)
					}
				}
			}
		}
	}
	return p
}

// ── Phase 4: per-capita ──

func validatePerCapita(datasets []*domain.Dataset) *phase {
	p := &phase{name: "Phase 4: Per-capita normalization"}
	fmt.Printf("Running %s...\n", p.name)
	for _, ds := range datasets {
		for _, g := range ds.Groups {
			for _, obs := range g.Observations {
				for _, m := range domain.CaseMetrics {
					abs, _ := obs.Value(domain.Abs(m))
					pc, ok := obs.Value(domain.PerCapitaOf(m))
					switch {
					case obs.Population == 0 && ok:
						p.errorf("%s/%s %s: %s defined without population", scopeName(ds), g.Key,
							obs.Date.Format(time.DateOnly), domain.PerCapitaOf(m))
					case obs.Population > 0 && !ok:
						p.errorf("%s/%s %s: %s missing", scopeName(ds), g.Key,
							obs.Date.Format(time.DateOnly), domain.PerCapitaOf(m))
					case ok:
						want := abs / float64(obs.Population) * 1e5
						if math.Abs(pc-want) > tolerance*math.Max(1, math.Abs(want)) {
							p.errorf("%s/%s %s: %s = %v, want %v", scopeName(ds), g.Key,
								obs.Date.Format(time.DateOnly), domain.PerCapitaOf(m), pc, want)
						}
					}
				}
			}
		}
	}
	return p
}

// ── Phase 5: extents ──

func validateExtents(datasets []*domain.Dataset) *phase {
	p := &phase{name: "Phase 5: Extent coverage"}
	fmt.Printf("Running %s...\n", p.name)
	for _, ds := range datasets {
		for _, f := range domain.ExtentFields(ds.HasTesting) {
			ext := ds.Extents.Get(f)
			if ext.Min > 0 {
				p.errorf("%s: %s extent floor %v above zero", scopeName(ds), f, ext.Min)
			}
			for _, g := range ds.Groups {
				for _, obs := range g.Observations {
					if v, ok := obs.Value(f); ok && !ext.Contains(v) {
						p.errorf("%s/%s %s: %s = %v outside [%v, %v]", scopeName(ds), g.Key,
							obs.Date.Format(time.DateOnly), f, v, ext.Min, ext.Max)
					}
				}
			}
		}
	}
	return p
}

// ── Phase 6: hierarchy ──

func validateHierarchy(states *domain.Dataset, counties domain.CountyIndex) *phase {
	p := &phase{name: "Phase 6: State/county consistency"}
	fmt.Printf("Running %s...\n", p.name)
	for _, name := range counties.States() {
		ds := counties[name]
		if ds.Level != domain.LevelCounties || ds.Scope != name {
			p.errorf("county dataset %q has level %s scope %q", name, ds.Level, ds.Scope)
		}
		if _, ok := states.Group(name); !ok {
			p.errorf("county dataset %q has no state group", name)
		}
		for _, g := range ds.Groups {
			if g.State != name {
				p.errorf("%s/%s: group state is %q", name, g.Key, g.State)
			}
		}
	}
	return p
}

func scopeName(ds *domain.Dataset) string {
	if ds.Level == domain.LevelCounties {
		return "counties:" + ds.Scope
	}
	return "states"
}

func countGroups(counties domain.CountyIndex) int {
	n := 0
	for _, ds := range counties {
		n += len(ds.Groups)
	}
	return n
}

func countObservations(datasets []*domain.Dataset) int {
	n := 0
	for _, ds := range datasets {
		for _, g := range ds.Groups {
			n += len(g.Observations)
		}
	}
	return n
}
