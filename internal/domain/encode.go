package domain

import "math"

// Depth bucket colors, deepest first.
const (
	ColorDeep         = "#ea2c2c"
	ColorIntermediate = "#ea822c"
	ColorMidDepth     = "#ee9c00"
	ColorModerate     = "#eecc00"
	ColorShallow      = "#d4ee00"
	ColorSurface      = "#98ee00"
)

// depthBuckets lists lower bounds (exclusive) with their colors, deepest first.
// Depths that exceed none of the bounds use ColorSurface.
var depthBuckets = []struct {
	above float64
	color string
}{
	{90, ColorDeep},
	{70, ColorIntermediate},
	{50, ColorMidDepth},
	{30, ColorModerate},
	{10, ColorShallow},
}

// ChooseColor maps an event depth in kilometers to its fill color.
// NaN depths fall through to the surface bucket.
func ChooseColor(depth float64) string {
	for _, b := range depthBuckets {
		if depth > b.above {
			return b.color
		}
	}
	return ColorSurface
}

// GetRadius scales a magnitude to a marker radius in pixels.
func GetRadius(magnitude float64) float64 {
	return magnitude * 4
}

// MarkerRadius is GetRadius floored at zero. NaN magnitudes yield zero.
func MarkerRadius(magnitude float64) float64 {
	r := GetRadius(magnitude)
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	return r
}

// LegendEntry is one swatch in the depth legend.
type LegendEntry struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// DepthLegend returns the legend entries, shallowest first.
func DepthLegend() []LegendEntry {
	return []LegendEntry{
		{Color: ColorSurface, Label: "-10-10"},
		{Color: ColorShallow, Label: "10-30"},
		{Color: ColorModerate, Label: "30-50"},
		{Color: ColorMidDepth, Label: "50-70"},
		{Color: ColorIntermediate, Label: "70-90"},
		{Color: ColorDeep, Label: "90+"},
	}
}
