package domain

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strconv"
	"time"
)

// EarthquakeEvent is one located feature from a USGS summary feed.
type EarthquakeEvent struct {
	ID        string
	Latitude  float64
	Longitude float64
	Depth     float64 // km; NaN when the feed omits it
	Magnitude float64
	Title     string
}

// LatLng is a WGS-84 coordinate in Leaflet order.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Marker is the circle drawn for one earthquake.
type Marker struct {
	EventID     string   `json:"event_id,omitempty"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Depth       *float64 `json:"depth"`
	Magnitude   float64  `json:"magnitude"`
	Title       string   `json:"title"`
	FillColor   string   `json:"fill_color"`
	Color       string   `json:"color"`
	FillOpacity float64  `json:"fill_opacity"`
	Radius      float64  `json:"radius"`
	Popup       string   `json:"popup"`
}

// Marker stroke and opacity shared by every earthquake marker.
const (
	MarkerStroke      = "yellow"
	MarkerFillOpacity = 0.75
)

// NewMarker encodes an event as a styled marker with its popup.
func NewMarker(e EarthquakeEvent) Marker {
	m := Marker{
		EventID:     e.ID,
		Lat:         e.Latitude,
		Lng:         e.Longitude,
		Magnitude:   e.Magnitude,
		Title:       e.Title,
		FillColor:   ChooseColor(e.Depth),
		Color:       MarkerStroke,
		FillOpacity: MarkerFillOpacity,
		Radius:      MarkerRadius(e.Magnitude),
		Popup:       popupHTML(e.Title, e.Depth),
	}
	if !math.IsNaN(e.Depth) {
		d := e.Depth
		m.Depth = &d
	}
	return m
}

// popupHTML renders the marker popup. The title is escaped; feed text is untrusted.
func popupHTML(title string, depth float64) string {
	d := "unknown"
	if !math.IsNaN(depth) {
		d = strconv.FormatFloat(depth, 'f', -1, 64) + "m"
	}
	return fmt.Sprintf("<h1>%s</h1><hr><h2>Depth: %s</h2>", html.EscapeString(title), d)
}

// HeatSample is a [lat, lng] density point for the heat layer.
type HeatSample [2]float64

// HeatOptions configures the heat overlay.
type HeatOptions struct {
	Radius int `json:"radius"`
	Blur   int `json:"blur"`
}

// BoundaryStyle configures the plate boundary overlay.
type BoundaryStyle struct {
	Color  string `json:"color"`
	Weight int    `json:"weight"`
}

// BaseLayer is a tile source the user can pick as the map background.
type BaseLayer struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Attribution string `json:"attribution" yaml:"attribution"`
	Default     bool   `json:"default" yaml:"default"`
}

// OverlayControl is one toggle in the layer control.
type OverlayControl struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// Overlay names as shown in the layer control.
const (
	OverlayEarthquakes = "Earthquakes"
	OverlayPlates      = "Tectonic Plates"
	OverlayHeatmap     = "Heatmap"
)

// Map view defaults.
var DefaultCenter = LatLng{Lat: 40.7, Lng: -94.5}

const DefaultZoom = 3

// Scene is everything the page needs to mount one map.
type Scene struct {
	Window        TimeWindow       `json:"window"`
	Generation    uint64           `json:"generation,omitempty"`
	Center        LatLng           `json:"center"`
	Zoom          int              `json:"zoom"`
	BaseLayers    []BaseLayer      `json:"base_layers"`
	Markers       []Marker         `json:"markers"`
	Heat          []HeatSample     `json:"heat"`
	HeatOptions   HeatOptions      `json:"heat_options"`
	Boundaries    json.RawMessage  `json:"boundaries"`
	BoundaryStyle BoundaryStyle    `json:"boundary_style"`
	Overlays      []OverlayControl `json:"overlays"`
	Legend        []LegendEntry    `json:"legend"`
	Total         int              `json:"total"`
	Skipped       int              `json:"skipped"`
	Fingerprint   string           `json:"fingerprint"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// NewScene assembles a scene from decoded events and boundary geometry.
// It applies the fixed view, overlay visibility, and legend.
func NewScene(window TimeWindow, bases []BaseLayer, feed DecodedFeed, boundaries json.RawMessage) Scene {
	markers := make([]Marker, 0, len(feed.Events))
	heat := make([]HeatSample, 0, len(feed.Events))
	for _, e := range feed.Events {
		markers = append(markers, NewMarker(e))
		heat = append(heat, HeatSample{e.Latitude, e.Longitude})
	}

	return Scene{
		Window:        window,
		Center:        DefaultCenter,
		Zoom:          DefaultZoom,
		BaseLayers:    bases,
		Markers:       markers,
		Heat:          heat,
		HeatOptions:   HeatOptions{Radius: 50, Blur: 15},
		Boundaries:    boundaries,
		BoundaryStyle: BoundaryStyle{Color: "blue", Weight: 5},
		Overlays: []OverlayControl{
			{Name: OverlayEarthquakes, Visible: true},
			{Name: OverlayPlates, Visible: true},
			{Name: OverlayHeatmap, Visible: false},
		},
		Legend:      DepthLegend(),
		Total:       feed.Total,
		Skipped:     feed.Skipped,
		GeneratedAt: clock.Now().UTC(),
	}
}
