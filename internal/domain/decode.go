package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	geojson "github.com/paulmach/go.geojson"
)

// DecodedFeed is the result of decoding one earthquake feed document.
type DecodedFeed struct {
	Events    []EarthquakeEvent
	Total     int // features in the document
	Skipped   int // features without a usable location, including Malformed
	Malformed int // features that failed to decode
}

// collectionEnvelope is decoded first so one bad feature cannot fail the whole document.
type collectionEnvelope struct {
	Type     string             `json:"type"`
	Features *[]json.RawMessage `json:"features"`
}

// locationProbe detects null geometry or coordinates before full decoding.
type locationProbe struct {
	Geometry *struct {
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// DecodeEarthquakeFeed parses a USGS FeatureCollection into events.
//
// A document that is not a FeatureCollection with a features array fails with
// ErrDataShape. Features without a location are skipped silently; features that
// fail to decode are logged and skipped.
func DecodeEarthquakeFeed(data []byte, logger *slog.Logger) (DecodedFeed, error) {
	var env collectionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return DecodedFeed{}, fmt.Errorf("%w: decode earthquake feed: %v", ErrDataShape, err)
	}
	if env.Type != "FeatureCollection" {
		return DecodedFeed{}, fmt.Errorf("%w: earthquake feed type %q, want FeatureCollection", ErrDataShape, env.Type)
	}
	if env.Features == nil {
		return DecodedFeed{}, fmt.Errorf("%w: earthquake feed has no features array", ErrDataShape)
	}

	raws := *env.Features
	out := DecodedFeed{
		Events: make([]EarthquakeEvent, 0, len(raws)),
		Total:  len(raws),
	}
	for i, raw := range raws {
		event, ok, err := decodeFeature(raw)
		if err != nil {
			logger.Warn("malformed earthquake feature, skipping", "index", i, "error", err)
			out.Malformed++
			out.Skipped++
			continue
		}
		if !ok {
			out.Skipped++
			continue
		}
		out.Events = append(out.Events, event)
	}
	return out, nil
}

// decodeFeature returns ok=false for features without a location.
func decodeFeature(raw json.RawMessage) (EarthquakeEvent, bool, error) {
	var probe locationProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return EarthquakeEvent{}, false, fmt.Errorf("%w: %v", ErrDataShape, err)
	}
	if probe.Geometry == nil || isNullJSON(probe.Geometry.Coordinates) {
		return EarthquakeEvent{}, false, nil
	}

	f, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return EarthquakeEvent{}, false, fmt.Errorf("%w: %v", ErrDataShape, err)
	}
	if f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
		return EarthquakeEvent{}, false, nil
	}

	pt := f.Geometry.Point
	event := EarthquakeEvent{
		Longitude: pt[0],
		Latitude:  pt[1],
		Depth:     math.NaN(),
	}
	if len(pt) >= 3 {
		event.Depth = pt[2]
	}
	// mag is null for events without an assigned magnitude yet.
	if mag, err := f.PropertyFloat64("mag"); err == nil {
		event.Magnitude = mag
	}
	if title, err := f.PropertyString("title"); err == nil {
		event.Title = title
	}
	if f.ID != nil {
		event.ID = fmt.Sprint(f.ID)
	}
	return event, true, nil
}

func isNullJSON(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("[]"))
}

// ValidateBoundaries checks that a plate boundary document is a GeoJSON
// FeatureCollection or GeometryCollection and returns it unmodified.
func ValidateBoundaries(data []byte) (json.RawMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: decode plate boundaries: %v", ErrDataShape, err)
	}

	switch head.Type {
	case "FeatureCollection":
		if _, err := geojson.UnmarshalFeatureCollection(data); err != nil {
			return nil, fmt.Errorf("%w: plate boundaries: %v", ErrDataShape, err)
		}
	case "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: plate boundaries: %v", ErrDataShape, err)
		}
		if !g.IsCollection() {
			return nil, fmt.Errorf("%w: plate boundaries are not a geometry collection", ErrDataShape)
		}
	default:
		return nil, fmt.Errorf("%w: plate boundaries type %q", ErrDataShape, head.Type)
	}
	return json.RawMessage(data), nil
}
