// Command render loads COVID case, population, and testing CSVs (local
// files or URLs) and writes one grid frame as SVG, or a single cell as PNG.
// It runs the same loader, normalizer, and renderer as the service.
//
// Usage:
//
//	go run ./cmd/render \
//	  -states internal/pipeline/testdata/us-states.csv \
//	  -state-pop internal/pipeline/testdata/pop-states.csv \
//	  -field newCases -window 7d -normalization per-100k \
//	  -out grid.svg
//
// Pass -state to render one state's counties, and -cell N to export cell N
// as a PNG bar chart instead of the grid.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-grid-service/internal/adapter/source"
	"github.com/couchcryptid/covid-grid-service/internal/config"
	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/layout"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/pipeline"
	"github.com/couchcryptid/covid-grid-service/internal/render"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		sources config.Sources
		opts    layout.Options
	)
	flag.StringVar(&sources.States, "states", "", "state case CSV (file or URL)")
	flag.StringVar(&sources.Counties, "counties", "", "county case CSV, required with -state")
	flag.StringVar(&sources.StatePopulation, "state-pop", "", "state population CSV")
	flag.StringVar(&sources.CountyPopulation, "county-pop", "", "county population CSV")
	flag.StringVar(&sources.Testing, "testing", "", "state testing CSV (optional)")
	flag.StringVar(&opts.Field, "field", "", "metric, e.g. newCases, deaths, tests")
	flag.StringVar(&opts.Window, "window", "", "time window: 7d, 14d, 30d, all")
	flag.StringVar(&opts.Scale, "scale", "", "linear or log")
	flag.StringVar(&opts.Normalization, "normalization", "", "absolute or per-100k")
	flag.StringVar(&opts.YAxis, "yaxis", "", "shared or independent")
	state := flag.String("state", "", "render the counties of this state")
	width := flag.Int("width", 1280, "viewport width in pixels")
	cell := flag.Int("cell", -1, "export this cell as PNG instead of the grid")
	profilePath := flag.String("profile", "", "YAML layout profile")
	out := flag.String("out", "", "output path (default stdout)")
	timeout := flag.Duration("timeout", time.Minute, "load timeout")
	flag.Parse()

	if sources.States == "" || sources.StatePopulation == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -states, -state-pop")
	}
	if *state != "" && (sources.Counties == "" || sources.CountyPopulation == "") {
		return fmt.Errorf("-state requires -counties and -county-pop")
	}

	filter, err := layout.DefaultFilter().Apply(opts)
	if err != nil {
		return err
	}
	profile := layout.DefaultProfile()
	if *profilePath != "" {
		data, err := os.ReadFile(*profilePath)
		if err != nil {
			return err
		}
		if profile, err = layout.ParseProfile(data); err != nil {
			return err
		}
	}

	ds, err := load(sources, *state, *timeout)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	r := render.NewRenderer(profile)
	if *cell >= 0 {
		if err := r.RenderCellPNG(&buf, ds, filter, *width, *cell); err != nil {
			return err
		}
	} else {
		frame, err := r.Render(ds, filter, *width, ds.Level)
		if err != nil {
			return err
		}
		buf.Write(frame.SVG)
		log.Printf("%s %s: %d cells, %dx%d", ds.Level, filter, len(frame.Cells), frame.Width, frame.Height)
	}
	return write(*out, &buf)
}

// load runs the service loader against sources and returns the dataset to
// chart: the state dataset, or the county dataset of state.
func load(sources config.Sources, state string, timeout time.Duration) (*domain.Dataset, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()
	client := source.NewClient(timeout, metrics, logger)
	inputs := pipeline.NewInputs()
	store := pipeline.NewStore()
	builder := pipeline.NewBuilder(inputs, store, logger, metrics)
	loader := pipeline.NewLoader(client, client, sources, inputs, builder, clockwork.NewRealClock(), 0, logger)

	if state == "" {
		if err := loader.LoadStates(ctx); err != nil {
			return nil, err
		}
		return store.States(), nil
	}
	if err := loader.LoadCounties(ctx); err != nil {
		return nil, err
	}
	ds, ok := store.Counties()[state]
	if !ok {
		return nil, fmt.Errorf("no county data for state %q", state)
	}
	return ds, nil
}

func write(path string, r io.Reader) error {
	if path == "" {
		_, err := io.Copy(os.Stdout, r)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
