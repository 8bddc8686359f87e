// Package risk turns nearby community signals into danger predictions and mock route comparisons.
package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
)

const (
	// ReportRadius bounds the reports a prediction looks at, in meters
	ReportRadius = 2000
	// ReportLimit keeps only the closest reports
	ReportLimit = 20
	// AlertRadius bounds the SOS alerts a prediction looks at, in meters
	AlertRadius = 5000
	// AlertWindow is how far back SOS alerts count
	AlertWindow = 7 * 24 * time.Hour

	minScore     = 1
	maxScore     = 5
	neutralScore = 3
	alertWeight  = 0.3
	maxAlertLift = 1.5
)

// Source supplies uniform values in [0, 1)
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Score is a danger score. It serializes with one decimal as a string.
type Score float64

// Rounded returns the score rounded to one decimal
func (s Score) Rounded() float64 {
	return math.Round(float64(s)*10) / 10
}

func (s Score) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatFloat(s.Rounded(), 'f', 1, 64))), nil
}

// Factor explains one contribution to a prediction
type Factor struct {
	Factor      string `json:"factor"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
}

// Prediction is the outcome of scoring one point
type Prediction struct {
	DangerScore     Score    `json:"dangerScore"`
	DangerLevel     string   `json:"dangerLevel"`
	Factors         []Factor `json:"factors"`
	ReportsAnalyzed int      `json:"reportsAnalyzed"`
	SOSAlertsNearby int      `json:"sosAlertsNearby"`
}

// Inputs are the pre-fetched documents around a point
type Inputs struct {
	Reports []model.SafetyReport
	Alerts  []model.SOSAlert
}

// Lookup gathers the inputs for a point
type Lookup interface {
	Lookup(ctx context.Context, p geo.Point) (Inputs, error)
}

// Engine scores locations. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	rand       Source
	now        func() time.Time
	onFallback func(geo.Point, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithSource replaces the random source
func WithSource(src Source) Option {
	return func(e *Engine) { e.rand = src }
}

// WithClock replaces the clock used for the alert window
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFallbackHook is called whenever a lookup fails and the neutral prediction is used
func WithFallbackHook(fn func(geo.Point, error)) Option {
	return func(e *Engine) { e.onFallback = fn }
}

// NewEngine creates an engine backed by the process-wide random source
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rand: globalSource{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the danger prediction for a point from nearby reports and alerts.
// Alerts older than AlertWindow are ignored.
func (e *Engine) Score(timeOfDay model.TimeOfDay, reports []model.SafetyReport, alerts []model.SOSAlert) Prediction {
	cutoff := e.now().Add(-AlertWindow)
	recent := 0
	for _, a := range alerts {
		if !a.CreatedAt.Before(cutoff) {
			recent++
		}
	}

	score := baseScore(reports)
	if recent > 0 {
		score += math.Min(alertWeight*float64(recent), maxAlertLift)
	}
	score += timeOffset(timeOfDay)

	crowd := e.rand.Float64()*0.5 - 0.25
	score += crowd
	score = clamp(score, minScore, maxScore)

	factors := make([]Factor, 0, 4)
	if n := len(reports); n > 0 {
		impact := "Medium"
		if n > 10 {
			impact = "High"
		}
		factors = append(factors, Factor{
			Factor:      "Community Reports",
			Impact:      impact,
			Description: fmt.Sprintf("%d safety reports in area", n),
		})
	}
	if recent > 0 {
		factors = append(factors, Factor{
			Factor:      "Recent SOS Alerts",
			Impact:      "High",
			Description: fmt.Sprintf("%d emergency alerts in past week", recent),
		})
	}

	timeImpact := "Low"
	if timeOfDay == model.TimeNight {
		timeImpact = "High"
	}
	factors = append(factors, Factor{
		Factor:      "Time of Day",
		Impact:      timeImpact,
		Description: capitalize(string(timeOfDay)) + " hours",
	})

	crowdDesc := "Good crowd presence"
	if crowd > 0 {
		crowdDesc = "Low footfall detected"
	}
	factors = append(factors, Factor{
		Factor:      "Crowd Density",
		Impact:      "Medium",
		Description: crowdDesc,
	})

	return Prediction{
		DangerScore:     Score(score),
		DangerLevel:     Level(score),
		Factors:         factors,
		ReportsAnalyzed: len(reports),
		SOSAlertsNearby: recent,
	}
}

// Predict looks up the inputs for p and scores them.
// A failed lookup degrades to the neutral prediction instead of an error.
func (e *Engine) Predict(ctx context.Context, lookup Lookup, p geo.Point, timeOfDay model.TimeOfDay) Prediction {
	in, err := lookup.Lookup(ctx, p)
	if err != nil {
		if e.onFallback != nil {
			e.onFallback(p, err)
		}
		return Neutral()
	}
	return e.Score(timeOfDay, in.Reports, in.Alerts)
}

// Neutral is the baseline prediction used when no data could be gathered
func Neutral() Prediction {
	return Prediction{
		DangerScore: neutralScore,
		DangerLevel: "Moderate",
		Factors: []Factor{{
			Factor:      "Insufficient Data",
			Impact:      "Medium",
			Description: "Using baseline prediction",
		}},
	}
}

// Level maps a clamped score to its danger level
func Level(score float64) string {
	switch {
	case score <= 1.5:
		return "Very Safe"
	case score <= 2.5:
		return "Safe"
	case score <= 3.5:
		return "Moderate"
	case score <= 4.5:
		return "Unsafe"
	default:
		return "Very Unsafe"
	}
}

// Recommendations returns advice for a displayed score
func Recommendations(score Score) []string {
	switch s := score.Rounded(); {
	case s >= 4:
		return []string{
			"Avoid traveling alone in this area",
			"Consider using safe route alternative",
			"Share live location with trusted contacts",
		}
	case s >= 3:
		return []string{
			"Stay alert in this area",
			"Keep emergency contacts ready",
		}
	default:
		return []string{
			"Area appears safe",
			"Continue normal precautions",
		}
	}
}

// baseScore inverts the mean community rating, 5 safe becomes 1 danger
func baseScore(reports []model.SafetyReport) float64 {
	if len(reports) == 0 {
		return neutralScore
	}
	total := 0
	for _, r := range reports {
		total += r.SafetyRating
	}
	return 6 - float64(total)/float64(len(reports))
}

func timeOffset(t model.TimeOfDay) float64 {
	switch t {
	case model.TimeMorning:
		return -0.5
	case model.TimeAfternoon:
		return -0.3
	case model.TimeEvening:
		return 0.3
	case model.TimeNight:
		return 1.0
	default:
		return 0
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
