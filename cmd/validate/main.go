// Command validate checks a scene JSON fixture, as written by scenegen or
// returned by /api/scene, against the marker encoding rules: marker and heat
// counts, depth colors, radii, popup text, layer controls, and the legend.
//
// Usage:
//
//	go run ./cmd/validate -scene testdata/scene_week.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/quakemap/internal/domain"
)

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
	scenePath := flag.String("scene", "", "path to a scene JSON fixture")
	flag.Parse()

	if *scenePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*scenePath); code != 0 {
		os.Exit(code)
	}
}

func run(path string) int {
	fmt.Println("=== Scene Fixture Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read scene: %v\n", err)
		return 1
	}
	var scene domain.Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode scene: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateCounts(scene),
		validateMarkers(scene),
		validateLayers(scene),
		validateLegend(scene),
	}

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
	fmt.Printf("Window %s: %d features, %d markers, %d skipped\n",
		scene.Window, scene.Total, len(scene.Markers), scene.Skipped)

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

func validateCounts(scene domain.Scene) *phase {
	p := &phase{name: "Marker and heat counts"}
	if want := scene.Total - scene.Skipped; len(scene.Markers) != want {
		p.errorf("markers: got %d, want total-skipped = %d", len(scene.Markers), want)
	}
	if len(scene.Heat) != len(scene.Markers) {
		p.errorf("heat samples: got %d, want %d", len(scene.Heat), len(scene.Markers))
	}
	for i := range scene.Heat {
		if i >= len(scene.Markers) {
			break
		}
		m := scene.Markers[i]
		if scene.Heat[i][0] != m.Lat || scene.Heat[i][1] != m.Lng {
			p.errorf("heat[%d] %v does not match marker at [%v %v]", i, scene.Heat[i], m.Lat, m.Lng)
		}
	}
	return p
}

func validateMarkers(scene domain.Scene) *phase {
	p := &phase{name: "Marker encoding"}
	for i, m := range scene.Markers {
		depth := math.NaN()
		if m.Depth != nil {
			depth = *m.Depth
		}
		if want := domain.ChooseColor(depth); m.FillColor != want {
			p.errorf("marker %d (%s): fill %s, want %s", i, m.EventID, m.FillColor, want)
		}
		if want := domain.MarkerRadius(m.Magnitude); math.Abs(m.Radius-want) > 1e-9 {
			p.errorf("marker %d (%s): radius %v, want %v", i, m.EventID, m.Radius, want)
		}
		if m.Color != domain.MarkerStroke || m.FillOpacity != domain.MarkerFillOpacity {
			p.errorf("marker %d (%s): stroke %s opacity %v", i, m.EventID, m.Color, m.FillOpacity)
		}
		if !strings.HasPrefix(m.Popup, "<h1>") || !strings.Contains(m.Popup, "<hr><h2>Depth: ") {
			p.errorf("marker %d (%s): malformed popup %q", i, m.EventID, m.Popup)
		}
	}
	return p
}

func validateLayers(scene domain.Scene) *phase {
	p := &phase{name: "Base layers and overlays"}
	defaults := 0
	for _, b := range scene.BaseLayers {
		if b.Default {
			defaults++
		}
	}
	if defaults != 1 {
		p.errorf("base layers: %d defaults, want 1", defaults)
	}

	want := map[string]bool{
		domain.OverlayEarthquakes: true,
		domain.OverlayPlates:      true,
		domain.OverlayHeatmap:     false,
	}
	if len(scene.Overlays) != len(want) {
		p.errorf("overlays: got %d, want %d", len(scene.Overlays), len(want))
	}
	for _, o := range scene.Overlays {
		visible, ok := want[o.Name]
		if !ok {
			p.errorf("unexpected overlay %q", o.Name)
			continue
		}
		if o.Visible != visible {
			p.errorf("overlay %q visible=%v, want %v", o.Name, o.Visible, visible)
		}
	}
	if len(scene.Boundaries) == 0 {
		p.errorf("missing plate boundary geometry")
	}
	return p
}

func validateLegend(scene domain.Scene) *phase {
	p := &phase{name: "Depth legend"}
	want := domain.DepthLegend()
	if len(scene.Legend) != len(want) {
		p.errorf("legend: got %d entries, want %d", len(scene.Legend), len(want))
		return p
	}
	for i := range want {
		if scene.Legend[i] != want[i] {
			p.errorf("legend[%d]: got %+v, want %+v", i, scene.Legend[i], want[i])
		}
	}
	return p
}
