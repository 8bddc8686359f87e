package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"aegisher/api/internal/apperr"
	"aegisher/api/internal/geo"
	"aegisher/api/internal/metrics"
	"aegisher/api/internal/model"
	"aegisher/api/internal/risk"
	"aegisher/api/internal/store"
)

const (
	// AIModel labels the mock predictor
	AIModel = "AegiSher AI v1.0 (Mock)"
	// ConfidenceLevel is reported with every analysis
	ConfidenceLevel = "85%"
	// DefaultHeatmapRadius is echoed back when the caller gives none, in meters
	DefaultHeatmapRadius = 10000
)

var errPrefetchTruncated = errors.New("heatmap prefetch hit the candidate limit")

// Coordinates is a plain lat/lon pair in responses
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AnalyzedPrediction is a prediction with advice attached
type AnalyzedPrediction struct {
	risk.Prediction
	Recommendations []string `json:"recommendations"`
}

// Analysis 危险等级分析结果
type Analysis struct {
	Location        Coordinates        `json:"location"`
	Timestamp       time.Time          `json:"timestamp"`
	Prediction      AnalyzedPrediction `json:"prediction"`
	AIModel         string             `json:"aiModel"`
	ConfidenceLevel string             `json:"confidenceLevel"`
}

// HeatmapCenter echoes the grid center
type HeatmapCenter struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Heatmap 热力图结果
type Heatmap struct {
	GridSize    string        `json:"gridSize"`
	Center      HeatmapCenter `json:"center"`
	Radius      int           `json:"radius"`
	HeatmapData []risk.Cell   `json:"heatmapData"`
}

// PredictionService gathers nearby reports and alerts and scores them
type PredictionService struct {
	store  *store.Store
	engine *risk.Engine
	log    *zap.Logger
	now    func() time.Time
}

// NewPredictionService 创建预测服务. opts configure the scoring engine.
func NewPredictionService(s *store.Store, m *metrics.Metrics, log *zap.Logger, opts ...risk.Option) *PredictionService {
	if log == nil {
		log = zap.NewNop()
	}
	svc := &PredictionService{
		store: s,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	opts = append(opts, risk.WithFallbackHook(func(p geo.Point, err error) {
		log.Warn("danger prediction fell back to baseline",
			zap.Float64("lat", p.Lat),
			zap.Float64("lon", p.Lon),
			zap.Error(err),
		)
		m.PredictionFallback()
	}))
	svc.engine = risk.NewEngine(opts...)
	return svc
}

// Analyze predicts the danger level at a point. An empty timeOfDay means evening.
func (s *PredictionService) Analyze(ctx context.Context, req *model.AnalyzeRequest) (*Analysis, error) {
	if !req.Latitude.Set || !req.Longitude.Set {
		return nil, apperr.Validation("Latitude and longitude are required")
	}
	p := geo.Point{Lat: req.Latitude.Value, Lon: req.Longitude.Value}
	if err := validatePoint(p); err != nil {
		return nil, err
	}

	tod := model.TimeEvening
	if t := strings.TrimSpace(req.TimeOfDay); t != "" {
		tod = model.TimeOfDay(t)
	}

	pred := s.engine.Predict(ctx, s.directLookup(), p, tod)
	return &Analysis{
		Location:  Coordinates{Latitude: p.Lat, Longitude: p.Lon},
		Timestamp: s.now(),
		Prediction: AnalyzedPrediction{
			Prediction:      pred,
			Recommendations: risk.Recommendations(pred.DangerScore),
		},
		AIModel:         AIModel,
		ConfidenceLevel: ConfidenceLevel,
	}, nil
}

// Heatmap scores the 11x11 grid around a center. radius is informational only.
func (s *PredictionService) Heatmap(ctx context.Context, lat, lng *float64, radius int) (*Heatmap, error) {
	if lat == nil || lng == nil {
		return nil, apperr.Validation("Center latitude and longitude are required")
	}
	center := geo.Point{Lat: *lat, Lon: *lng}
	if err := validatePoint(center); err != nil {
		return nil, err
	}
	if radius <= 0 {
		radius = DefaultHeatmapRadius
	}

	lookup, err := s.prefetch(ctx, center)
	if err != nil {
		// every cell still gets its own chance through the store
		s.log.Warn("heatmap prefetch failed", zap.Error(err))
		lookup = s.directLookup()
	}

	return &Heatmap{
		GridSize:    risk.GridSize(),
		Center:      HeatmapCenter{Lat: center.Lat, Lng: center.Lon},
		Radius:      radius,
		HeatmapData: s.engine.Heatmap(ctx, lookup, center),
	}, nil
}

func (s *PredictionService) directLookup() risk.Lookup {
	return &storeLookup{store: s.store, since: s.now().Add(-risk.AlertWindow)}
}

// prefetch loads every document the grid can see in one query per collection
func (s *PredictionService) prefetch(ctx context.Context, center geo.Point) (risk.Lookup, error) {
	since := s.now().Add(-risk.AlertWindow)
	reportBox := risk.GridBounds(center).Expand(risk.ReportRadius)
	alertBox := risk.GridBounds(center).Expand(risk.AlertRadius)

	reports, err := s.store.ReportsInBox(ctx, reportBox)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.AlertsInBox(ctx, alertBox, since)
	if err != nil {
		return nil, err
	}
	// a full page may have cut off documents some cells need
	if limit := s.store.CandidateLimit(); len(reports) >= limit || len(alerts) >= limit {
		return nil, errPrefetchTruncated
	}
	return &memoryLookup{reports: reports, alerts: alerts}, nil
}

// storeLookup queries the store for every point
type storeLookup struct {
	store *store.Store
	since time.Time
}

func (l *storeLookup) Lookup(ctx context.Context, p geo.Point) (risk.Inputs, error) {
	reports, err := l.store.ReportsNear(ctx, p, risk.ReportRadius, risk.ReportLimit)
	if err != nil {
		return risk.Inputs{}, err
	}
	alerts, err := l.store.AlertsNear(ctx, p, risk.AlertRadius, l.since)
	if err != nil {
		return risk.Inputs{}, err
	}
	return risk.Inputs{Reports: reports, Alerts: alerts}, nil
}

// memoryLookup answers near queries over prefetched documents
type memoryLookup struct {
	reports []model.SafetyReport
	alerts  []model.SOSAlert
}

func (l *memoryLookup) Lookup(_ context.Context, p geo.Point) (risk.Inputs, error) {
	return risk.Inputs{
		Reports: geo.Near(l.reports, p, risk.ReportRadius, risk.ReportLimit, reportPoint),
		Alerts:  geo.Near(l.alerts, p, risk.AlertRadius, 0, alertPoint),
	}, nil
}

func reportPoint(r model.SafetyReport) geo.Point {
	return geo.Point{Lat: r.Location.Latitude, Lon: r.Location.Longitude}
}

func alertPoint(a model.SOSAlert) geo.Point {
	return geo.Point{Lat: a.Location.Latitude, Lon: a.Location.Longitude}
}
