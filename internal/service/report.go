package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"aegisher/api/internal/apperr"
	"aegisher/api/internal/cache"
	"aegisher/api/internal/geo"
	"aegisher/api/internal/metrics"
	"aegisher/api/internal/model"
	"aegisher/api/internal/store"
)

const (
	// NearbyReportLimit caps the nearby listing
	NearbyReportLimit = 50
	// DefaultNearbyRadius is used when the caller gives no usable radius, in meters
	DefaultNearbyRadius = 5000
	// MaxNearbyRadius caps the search radius, in meters
	MaxNearbyRadius = 50000

	statsCacheKey = "stats:summary"
)

// NearbyReports is the result of a nearby query
type NearbyReports struct {
	Count               int                  `json:"count"`
	AverageSafetyRating string               `json:"averageSafetyRating"`
	Reports             []model.SafetyReport `json:"reports"`
}

// StatsSummary 平台统计, averageSafetyRating 为两位小数字符串, 无报告时为 0
type StatsSummary struct {
	TotalReports        int64                   `json:"totalReports"`
	AverageSafetyRating interface{}             `json:"averageSafetyRating"`
	ReportsByType       []model.ReportTypeCount `json:"reportsByType"`
}

// ReportService 安全报告服务
type ReportService struct {
	store   *store.Store
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewReportService 创建安全报告服务, c 和 m 可为 nil
func NewReportService(s *store.Store, c cache.Cache, ttl time.Duration, m *metrics.Metrics, log *zap.Logger) *ReportService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportService{
		store:   s,
		cache:   c,
		ttl:     ttl,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and stores a new report
func (s *ReportService) Submit(ctx context.Context, req *model.SubmitReportRequest) (*model.SafetyReport, error) {
	report, err := buildReport(req)
	if err != nil {
		return nil, err
	}
	report.CreatedAt = s.now()

	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, apperr.Internal(err, "Failed to submit safety report")
	}

	s.metrics.ReportSubmitted()
	s.invalidateStats(ctx)
	return report, nil
}

func buildReport(req *model.SubmitReportRequest) (*model.SafetyReport, error) {
	timeOfDay := strings.TrimSpace(req.TimeOfDay)
	if !req.Latitude.Set || !req.Longitude.Set || !req.SafetyRating.Set || timeOfDay == "" {
		return nil, apperr.Validation("Missing required fields: latitude, longitude, safetyRating, timeOfDay")
	}
	point := geo.Point{Lat: req.Latitude.Value, Lon: req.Longitude.Value}
	if err := validatePoint(point); err != nil {
		return nil, err
	}

	rating := req.SafetyRating.Value
	if !(rating >= model.MinSafetyRating && rating <= model.MaxSafetyRating) {
		return nil, apperr.Validation("Safety rating must be between %d and %d", model.MinSafetyRating, model.MaxSafetyRating)
	}
	if rating != math.Trunc(rating) {
		return nil, apperr.Validation("Safety rating must be a whole number")
	}

	tod := model.TimeOfDay(timeOfDay)
	if !tod.Valid() {
		return nil, apperr.Validation("Invalid timeOfDay: %s", timeOfDay)
	}

	reportType := model.ReportTypeGeneral
	if t := strings.TrimSpace(req.ReportType); t != "" {
		reportType = model.ReportType(t)
		if !reportType.Valid() {
			return nil, apperr.Validation("Invalid reportType: %s", t)
		}
	}

	comment := strings.TrimSpace(req.Comment)

	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = model.UnknownAddress
	}

	return &model.SafetyReport{
		UserID: nonEmpty(req.UserID),
		Location: model.PlaceLocation{
			Location: model.Location{
				Latitude:  point.Lat,
				Longitude: point.Lon,
				Address:   address,
			},
			PlaceName: strings.TrimSpace(req.PlaceName),
		},
		SafetyRating: int(rating),
		ReportType:   reportType,
		Comment:      comment,
		TimeOfDay:    tod,
	}, nil
}

// List returns every report, newest first
func (s *ReportService) List(ctx context.Context) ([]model.SafetyReport, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch safety reports")
	}
	if reports == nil {
		reports = []model.SafetyReport{}
	}
	return reports, nil
}

// Nearby returns up to NearbyReportLimit reports within radius meters, newest first
func (s *ReportService) Nearby(ctx context.Context, lat, lon *float64, radius float64) (*NearbyReports, error) {
	if lat == nil || lon == nil {
		return nil, apperr.Validation("Latitude and longitude are required")
	}
	center := geo.Point{Lat: *lat, Lon: *lon}
	if err := validatePoint(center); err != nil {
		return nil, err
	}
	if radius <= 0 {
		radius = DefaultNearbyRadius
	}
	radius = math.Min(radius, MaxNearbyRadius)

	reports, err := s.store.LatestReportsNear(ctx, center, radius, NearbyReportLimit)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch nearby reports")
	}
	if reports == nil {
		reports = []model.SafetyReport{}
	}

	avg := 0.0
	if len(reports) > 0 {
		sum := 0
		for _, r := range reports {
			sum += r.SafetyRating
		}
		avg = float64(sum) / float64(len(reports))
	}

	return &NearbyReports{
		Count:               len(reports),
		AverageSafetyRating: fmt.Sprintf("%.2f", avg),
		Reports:             reports,
	}, nil
}

// Get returns one report
func (s *ReportService) Get(ctx context.Context, id string) (*model.SafetyReport, error) {
	report, err := s.store.GetReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Report not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch report")
	}
	return report, nil
}

// Upvote atomically increments a report's upvotes and returns the new count
func (s *ReportService) Upvote(ctx context.Context, id string) (int, error) {
	upvotes, err := s.store.UpvoteReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperr.NotFound("Report not found")
	}
	if err != nil {
		return 0, apperr.Internal(err, "Failed to upvote report")
	}

	s.metrics.ReportUpvoted()
	s.invalidateStats(ctx)
	return upvotes, nil
}

// Stats returns the platform-wide summary, served from cache when possible
func (s *ReportService) Stats(ctx context.Context) (*StatsSummary, error) {
	var summary StatsSummary
	if s.cache != nil {
		hit, err := cache.GetJSON(ctx, s.cache, statsCacheKey, &summary)
		if err != nil {
			s.log.Warn("stats cache read failed", zap.Error(err))
		}
		s.metrics.CacheResult(hit)
		if hit {
			return &summary, nil
		}
	}

	stats, err := s.store.ReportStats(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch statistics")
	}

	summary = StatsSummary{
		TotalReports:        stats.TotalReports,
		AverageSafetyRating: 0,
		ReportsByType:       stats.ReportsByType,
	}
	if stats.TotalReports > 0 {
		summary.AverageSafetyRating = fmt.Sprintf("%.2f", stats.AverageRating)
	}
	if summary.ReportsByType == nil {
		summary.ReportsByType = []model.ReportTypeCount{}
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, statsCacheKey, &summary, s.ttl); err != nil {
			s.log.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return &summary, nil
}

func (s *ReportService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.log.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func validatePoint(p geo.Point) error {
	if !(p.Lat >= -90 && p.Lat <= 90) {
		return apperr.Validation("Latitude must be between -90 and 90")
	}
	if !(p.Lon >= -180 && p.Lon <= 180) {
		return apperr.Validation("Longitude must be between -180 and 180")
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
