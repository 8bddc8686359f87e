package risk

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
)

// fixedSource always returns the same value
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

// seqSource cycles through its values
type seqSource struct {
	values []float64
	i      int
}

func (s *seqSource) Float64() float64 {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}

var now = time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

// neutralJitter makes the crowd term r*0.5-0.25 exactly zero
const neutralJitter = fixedSource(0.5)

func newTestEngine(src Source) *Engine {
	return NewEngine(WithSource(src), WithClock(func() time.Time { return now }))
}

func reportsWithRating(n, rating int) []model.SafetyReport {
	out := make([]model.SafetyReport, n)
	for i := range out {
		out[i] = model.SafetyReport{SafetyRating: rating}
	}
	return out
}

func alertsAt(ts ...time.Time) []model.SOSAlert {
	out := make([]model.SOSAlert, len(ts))
	for i, t := range ts {
		out[i] = model.SOSAlert{CreatedAt: t}
	}
	return out
}

func TestScoreBaseTerms(t *testing.T) {
	e := newTestEngine(neutralJitter)

	// unknown time of day adds nothing, so the score is the base term
	empty := e.Score("", nil, nil)
	assert.Equal(t, 3.0, float64(empty.DangerScore))
	assert.Equal(t, "Moderate", empty.DangerLevel)
	assert.Zero(t, empty.ReportsAnalyzed)

	allSafe := e.Score("", reportsWithRating(4, 5), nil)
	assert.Equal(t, 1.0, float64(allSafe.DangerScore))
	assert.Equal(t, "Very Safe", allSafe.DangerLevel)
}

func TestNightVersusMorning(t *testing.T) {
	e := newTestEngine(neutralJitter)
	reports := reportsWithRating(3, 3)

	night := e.Score(model.TimeNight, reports, nil)
	morning := e.Score(model.TimeMorning, reports, nil)
	assert.InDelta(t, 1.5, float64(night.DangerScore-morning.DangerScore), 1e-9)
	assert.InDelta(t, 4.0, float64(night.DangerScore), 1e-9)
}

func TestScoreAlwaysClamped(t *testing.T) {
	recent := now.Add(-time.Hour)
	for _, r := range []float64{0, 0.25, 0.5, 0.999} {
		e := newTestEngine(fixedSource(r))
		for _, rating := range []int{1, 3, 5} {
			for _, tod := range []model.TimeOfDay{model.TimeMorning, model.TimeNight, "brunch"} {
				alerts := alertsAt(recent, recent, recent, recent, recent, recent, recent)
				for _, in := range []Inputs{
					{},
					{Reports: reportsWithRating(12, rating)},
					{Reports: reportsWithRating(2, rating), Alerts: alerts},
				} {
					p := e.Score(tod, in.Reports, in.Alerts)
					assert.GreaterOrEqual(t, float64(p.DangerScore), 1.0)
					assert.LessOrEqual(t, float64(p.DangerScore), 5.0)
				}
			}
		}
	}
}

func TestAlertLiftIsCappedAndWindowed(t *testing.T) {
	e := newTestEngine(neutralJitter)

	two := e.Score("", nil, alertsAt(now.Add(-time.Hour), now.Add(-48*time.Hour)))
	assert.InDelta(t, 3.6, float64(two.DangerScore), 1e-9)
	assert.Equal(t, 2, two.SOSAlertsNearby)

	ts := make([]time.Time, 9)
	for i := range ts {
		ts[i] = now.Add(-time.Duration(i) * time.Hour)
	}
	capped := e.Score(model.TimeMorning, nil, alertsAt(ts...))
	assert.InDelta(t, 4.0, float64(capped.DangerScore), 1e-9)

	stale := e.Score("", nil, alertsAt(now.Add(-8*24*time.Hour)))
	assert.Equal(t, 3.0, float64(stale.DangerScore))
	assert.Zero(t, stale.SOSAlertsNearby)
}

func TestFactors(t *testing.T) {
	e := newTestEngine(fixedSource(0.9))
	p := e.Score(model.TimeNight, reportsWithRating(11, 2), alertsAt(now))

	require.Len(t, p.Factors, 4)
	assert.Equal(t, Factor{Factor: "Community Reports", Impact: "High", Description: "11 safety reports in area"}, p.Factors[0])
	assert.Equal(t, Factor{Factor: "Recent SOS Alerts", Impact: "High", Description: "1 emergency alerts in past week"}, p.Factors[1])
	assert.Equal(t, Factor{Factor: "Time of Day", Impact: "High", Description: "Night hours"}, p.Factors[2])
	assert.Equal(t, Factor{Factor: "Crowd Density", Impact: "Medium", Description: "Low footfall detected"}, p.Factors[3])

	calm := newTestEngine(fixedSource(0.1)).Score(model.TimeAfternoon, reportsWithRating(3, 4), nil)
	require.Len(t, calm.Factors, 3)
	assert.Equal(t, "Medium", calm.Factors[0].Impact)
	assert.Equal(t, Factor{Factor: "Time of Day", Impact: "Low", Description: "Afternoon hours"}, calm.Factors[1])
	assert.Equal(t, "Good crowd presence", calm.Factors[2].Description)
}

func TestLevelThresholds(t *testing.T) {
	cases := map[float64]string{
		1.0: "Very Safe", 1.5: "Very Safe", 1.51: "Safe", 2.5: "Safe",
		3.5: "Moderate", 3.6: "Unsafe", 4.5: "Unsafe", 4.51: "Very Unsafe",
	}
	for score, want := range cases {
		assert.Equal(t, want, Level(score), "score %v", score)
	}
}

func TestRecommendations(t *testing.T) {
	assert.Len(t, Recommendations(4.0), 3)
	// 3.96 displays as 4.0
	assert.Equal(t, "Avoid traveling alone in this area", Recommendations(3.96)[0])
	assert.Equal(t, []string{"Stay alert in this area", "Keep emergency contacts ready"}, Recommendations(3.0))
	assert.Equal(t, []string{"Area appears safe", "Continue normal precautions"}, Recommendations(2.9))
}

func TestScoreJSON(t *testing.T) {
	data, err := json.Marshal(Neutral())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"dangerScore": "3.0",
		"dangerLevel": "Moderate",
		"factors": [{"factor":"Insufficient Data","impact":"Medium","description":"Using baseline prediction"}],
		"reportsAnalyzed": 0,
		"sosAlertsNearby": 0
	}`, string(data))
}

func TestScoreJSONMatchesRounded(t *testing.T) {
	for _, s := range []Score{2.25, 3.35, 4.05, 1.0} {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.Equal(t, strconv.Quote(strconv.FormatFloat(s.Rounded(), 'f', 1, 64)), string(data))
	}
	data, err := json.Marshal(Score(2.25))
	require.NoError(t, err)
	assert.Equal(t, `"2.3"`, string(data))
}

func TestTimeOfDayDescriptionStaysUTF8(t *testing.T) {
	p := newTestEngine(fixedSource(0.5)).Score(model.TimeOfDay("élan"), nil, nil)
	for _, f := range p.Factors {
		assert.True(t, utf8.ValidString(f.Description), f.Description)
	}
	assert.Contains(t, descriptions(p.Factors), "Élan hours")
}

func descriptions(factors []Factor) []string {
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		out = append(out, f.Description)
	}
	return out
}

type lookupFunc func(ctx context.Context, p geo.Point) (Inputs, error)

func (f lookupFunc) Lookup(ctx context.Context, p geo.Point) (Inputs, error) { return f(ctx, p) }

func TestPredictFallsBackOnLookupError(t *testing.T) {
	var failedAt []geo.Point
	e := NewEngine(WithSource(neutralJitter), WithFallbackHook(func(p geo.Point, err error) {
		failedAt = append(failedAt, p)
	}))

	failing := lookupFunc(func(context.Context, geo.Point) (Inputs, error) {
		return Inputs{}, errors.New("store down")
	})
	p := e.Predict(context.Background(), failing, geo.Point{Lat: 1, Lon: 2}, model.TimeNight)
	assert.Equal(t, Neutral(), p)
	assert.Equal(t, []geo.Point{{Lat: 1, Lon: 2}}, failedAt)
}
