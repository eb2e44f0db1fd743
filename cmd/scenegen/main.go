// Command scenegen renders a map scene from local GeoJSON files and writes it
// as a JSON fixture. It runs the same renderer as the service so fixtures
// match what /api/scene would return for the same upstream data.
//
// Usage:
//
//	go run ./cmd/scenegen \
//	  -quakes testdata/all_week.geojson \
//	  -plates testdata/PB2002_boundaries.json \
//	  -window week \
//	  -out testdata/scene_week.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/couchcryptid/quakemap/internal/render"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
)

// fileSource serves both feeds from disk.
type fileSource struct {
	quakesPath string
	platesPath string
}

func (f fileSource) FetchEarthquakes(_ context.Context, _ domain.TimeWindow) ([]byte, error) {
	return os.ReadFile(f.quakesPath)
}

func (f fileSource) FetchPlates(_ context.Context) ([]byte, error) {
	return os.ReadFile(f.platesPath)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	quakes := flag.String("quakes", "", "path to a USGS summary GeoJSON file")
	plates := flag.String("plates", "", "path to a plate boundary GeoJSON file")
	window := flag.String("window", string(domain.WindowWeek), "time window recorded in the scene (hour, day, week, month)")
	basemaps := flag.String("basemaps", "", "optional base layer YAML catalog")
	out := flag.String("out", "", "output path for the scene JSON fixture")
	flag.Parse()

	if *quakes == "" || *plates == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -quakes, -plates, -out")
	}

	tw, err := domain.ParseTimeWindow(*window)
	if err != nil {
		return err
	}
	bases, err := render.LoadBaseLayers(*basemaps)
	if err != nil {
		return err
	}

	// Set a fixed clock for reproducible GeneratedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	// Unregistered: nothing scrapes a one-shot run.
	metrics := observability.NewMetricsForTesting()
	renderer := render.NewRenderer(fileSource{quakesPath: *quakes, platesPath: *plates}, bases, logger, metrics)

	scene, err := renderer.Render(context.Background(), tw)
	if err != nil {
		return fmt.Errorf("render %s: %w", *quakes, err)
	}
	if err := writeJSON(*out, scene); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}

	log.Printf("%s: %s features, %s markers, %s skipped",
		tw, humanize.Comma(int64(scene.Total)), humanize.Comma(int64(len(scene.Markers))), humanize.Comma(int64(scene.Skipped)))
	printDepthBreakdown(scene)
	log.Printf("wrote scene fixture: %s (fingerprint %s)", *out, scene.Fingerprint)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printDepthBreakdown prints marker counts per legend bucket.
func printDepthBreakdown(scene domain.Scene) {
	counts := make(map[string]int, len(scene.Legend))
	for _, m := range scene.Markers {
		counts[m.FillColor]++
	}
	for _, e := range scene.Legend {
		fmt.Printf("  %-8s %s  %s\n", e.Label, e.Color, humanize.Comma(int64(counts[e.Color])))
	}
}
