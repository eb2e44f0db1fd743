package render

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/quakemap/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultBaseLayers returns the street and topographic tile sources, street first.
func DefaultBaseLayers() []domain.BaseLayer {
	return []domain.BaseLayer{
		{
			Name:        "Street",
			URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
			Default:     true,
		},
		{
			Name: "Topography",
			URL:  "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
			Attribution: `Map data: &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors, ` +
				`<a href="http://viewfinderpanoramas.org">SRTM</a> | Map style: &copy; <a href="https://opentopomap.org">OpenTopoMap</a> ` +
				`(<a href="https://creativecommons.org/licenses/by-sa/3.0/">CC-BY-SA</a>)`,
		},
	}
}

type basemapFile struct {
	BaseLayers []domain.BaseLayer `yaml:"base_layers"`
}

// LoadBaseLayers reads a YAML base layer catalog. An empty path returns the defaults.
//
//	base_layers:
//	  - name: Street
//	    url: https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png
//	    attribution: OpenStreetMap contributors
//	    default: true
func LoadBaseLayers(path string) ([]domain.BaseLayer, error) {
	if path == "" {
		return DefaultBaseLayers(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read basemaps file: %w", err)
	}
	var f basemapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse basemaps file: %w", err)
	}
	if err := validateBaseLayers(f.BaseLayers); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.BaseLayers, nil
}

// validateBaseLayers enforces unique, named layers with exactly one default.
func validateBaseLayers(layers []domain.BaseLayer) error {
	if len(layers) == 0 {
		return errors.New("no base layers defined")
	}
	seen := make(map[string]bool, len(layers))
	defaults := 0
	for i, l := range layers {
		if l.Name == "" || l.URL == "" {
			return fmt.Errorf("base layer %d needs a name and url", i)
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate base layer %q", l.Name)
		}
		seen[l.Name] = true
		if l.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("exactly one default base layer required, got %d", defaults)
	}
	return nil
}
