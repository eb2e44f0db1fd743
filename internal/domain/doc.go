// Package domain models USGS earthquake feed data and its visual encoding
// as map layers.
//
// # Data Sources
//
// Earthquake events come from the USGS real-time GeoJSON summary feeds:
//
//	https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_{window}.geojson
//
// where {window} is one of hour, day, week, month. Tectonic plate boundaries
// come from the PB2002 dataset (Bird, 2003) as republished by the
// fraxen/tectonicplates repository. The boundary document is never inspected
// beyond a shape check; it is forwarded to the map unchanged.
//
// # USGS Feed Conventions
//
// Coordinates:
//
//	geometry.coordinates = [longitude, latitude, depth]
//	Depth is in kilometers and may be slightly negative for events located
//	above the reference ellipsoid. Some features carry a null geometry or
//	only two coordinates.
//
// Properties:
//
//	mag   may be null for events that have not been assigned a magnitude yet.
//	title is a human readable summary, e.g. "M 5.2 - 10 km N of Somewhere".
//
// # Visual Encoding
//
// Fill color is chosen from six depth buckets with strict greater-than
// comparisons, so a depth exactly on a boundary falls in the shallower
// bucket. A missing depth is carried as NaN, which fails every comparison and
// lands in the shallowest bucket:
//
//	> 90 km  #ea2c2c
//	> 70 km  #ea822c
//	> 50 km  #ee9c00
//	> 30 km  #eecc00
//	> 10 km  #d4ee00
//	else     #98ee00
//
// Marker radius is four times the magnitude. The raw product is exposed by
// [GetRadius]; markers use [MarkerRadius], which floors the result at zero so
// unassigned or negative magnitudes still produce a (zero-size) marker.
//
// The legend's first label reads "-10-10" although the shallowest bucket has no
// lower bound. The label is kept as published.
package domain
