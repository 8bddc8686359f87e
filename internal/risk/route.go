package risk

import (
	"math"
	"strconv"

	"aegisher/api/internal/geo"
)

const (
	// kmPerDegree treats degrees as flat distance, valid only over short spans
	kmPerDegree  = 111
	minutesPerKm = 12
)

// Waypoint is a point along a mock route
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteVariant describes one synthesized route
type RouteVariant struct {
	Type               string     `json:"type"`
	Distance           string     `json:"distance"`
	Duration           string     `json:"duration"`
	SafetyScore        string     `json:"safetyScore"`
	DangerZonesAvoided int        `json:"dangerZonesAvoided"`
	Features           []string   `json:"features"`
	Warnings           []string   `json:"warnings"`
	Waypoints          []Waypoint `json:"waypoints,omitempty"`
}

// DangerZone marks a spot the normal route passes
type DangerZone struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Reason   string  `json:"reason"`
	Severity string  `json:"severity"`
}

// Routes pairs the two variants
type Routes struct {
	Safe   RouteVariant `json:"safe"`
	Normal RouteVariant `json:"normal"`
}

// Comparison is the result of comparing a safe and a normal route
type Comparison struct {
	Recommendation string       `json:"recommendation"`
	Message        string       `json:"message"`
	Routes         Routes       `json:"routes"`
	TimeDifference string       `json:"timeDifference"`
	DangerZones    []DangerZone `json:"dangerZones"`
}

// Comparator synthesizes mock routes. Its safety scores are random noise
// and do not read community reports.
type Comparator struct {
	rand Source
}

// NewComparator creates a comparator, nil uses the process-wide random source
func NewComparator(src Source) *Comparator {
	if src == nil {
		src = globalSource{}
	}
	return &Comparator{rand: src}
}

// Compare builds the safe and normal variants between start and end.
// The recommendation is always the safe route.
func (c *Comparator) Compare(start, end geo.Point) Comparison {
	safe := c.SafeRoute(start, end)
	safe.Waypoints = []Waypoint{
		{Lat: start.Lat, Lng: start.Lon},
		{Lat: start.Lat + 0.005, Lng: start.Lon + 0.003},
		{Lat: start.Lat + 0.008, Lng: start.Lon + 0.008},
		{Lat: end.Lat, Lng: end.Lon},
	}

	normal := c.NormalRoute(start, end)
	normal.Waypoints = []Waypoint{
		{Lat: start.Lat, Lng: start.Lon},
		{Lat: start.Lat + 0.003, Lng: start.Lon + 0.005},
		{Lat: end.Lat, Lng: end.Lon},
	}

	return Comparison{
		Recommendation: "safe",
		Message:        "Safe route recommended for better security",
		Routes:         Routes{Safe: safe, Normal: normal},
		TimeDifference: "2-3 mins longer but much safer",
		DangerZones: []DangerZone{{
			Lat:      start.Lat + 0.002,
			Lng:      start.Lon + 0.004,
			Reason:   "Low lighting reported",
			Severity: "medium",
		}},
	}
}

// SafeRoute is 15% longer and 20% slower than the direct line
func (c *Comparator) SafeRoute(start, end geo.Point) RouteVariant {
	distance := flatDistance(start, end)
	return RouteVariant{
		Type:               "safe",
		Distance:           formatKm(distance * 1.15),
		Duration:           formatMinutes(distance * minutesPerKm * 1.2),
		SafetyScore:        strconv.FormatFloat(c.rand.Float64()+4, 'f', 1, 64),
		DangerZonesAvoided: int(math.Floor(c.rand.Float64()*3)) + 1,
		Features: []string{
			"Well-lit streets",
			"High footfall area",
			"Police stations nearby",
			"CCTV coverage",
		},
		Warnings: []string{},
	}
}

// NormalRoute follows the direct line
func (c *Comparator) NormalRoute(start, end geo.Point) RouteVariant {
	distance := flatDistance(start, end)
	return RouteVariant{
		Type:               "normal",
		Distance:           formatKm(distance),
		Duration:           formatMinutes(distance * minutesPerKm),
		SafetyScore:        strconv.FormatFloat(c.rand.Float64()*2+2, 'f', 1, 64),
		DangerZonesAvoided: 0,
		Features: []string{
			"Shortest route",
			"Less traffic",
		},
		Warnings: []string{
			"Passes through poorly lit area",
			"Low footfall after 8 PM",
		},
	}
}

func flatDistance(a, b geo.Point) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lon-a.Lon) * kmPerDegree
}

func formatKm(km float64) string {
	return strconv.FormatFloat(km, 'f', 2, 64) + " km"
}

func formatMinutes(minutes float64) string {
	return strconv.Itoa(int(math.Round(minutes))) + " mins"
}
