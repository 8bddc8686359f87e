// Package geo holds the proximity math behind nearby queries.
package geo

import (
	"math"
	"sort"
)

const (
	earthRadiusMeters = 6371000
	// metersPerDegree is the length of one degree along a great circle
	metersPerDegree = earthRadiusMeters * math.Pi / 180
)

// Point is a WGS84 coordinate
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance in meters using the haversine formula
func Distance(a, b Point) float64 {
	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Box is a lat/lon rectangle used to prefilter candidates in SQL
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox returns a box that contains every point within radius meters of center.
// Near the poles, or across the antimeridian, the longitude span widens to the full range.
func BoundingBox(center Point, radius float64) Box {
	angular := radius / earthRadiusMeters
	dLat := radius / metersPerDegree
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}

	// widest longitude offset reached by the circle is asin(sin(r/R) / cos(lat))
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if s := math.Sin(angular); angular < math.Pi/2 && s < cosLat {
		dLon := math.Asin(s/cosLat) * 180 / math.Pi
		// a box crossing the antimeridian falls back to the full range
		if center.Lon-dLon >= -180 && center.Lon+dLon <= 180 {
			box.MinLon = center.Lon - dLon
			box.MaxLon = center.Lon + dLon
		}
	}
	return box
}

// Union returns the smallest box covering both boxes
func (b Box) Union(o Box) Box {
	return Box{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MinLon: math.Min(b.MinLon, o.MinLon),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
	}
}

// Expand widens the box so it contains every point within radius meters of any point inside it
func (b Box) Expand(radius float64) Box {
	out := b
	for _, corner := range []Point{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
	} {
		out = out.Union(BoundingBox(corner, radius))
	}
	return out
}

// Near keeps the items within maxDistance meters of center, ordered nearest first.
// A positive limit truncates the result.
func Near[T any](items []T, center Point, maxDistance float64, limit int, at func(T) Point) []T {
	type ranked struct {
		item T
		dist float64
	}

	candidates := make([]ranked, 0, len(items))
	for _, item := range items {
		d := Distance(center, at(item))
		if d <= maxDistance {
			candidates = append(candidates, ranked{item: item, dist: d})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]T, len(candidates))
	for i, c := range candidates {
		out[i] = c.item
	}
	return out
}
