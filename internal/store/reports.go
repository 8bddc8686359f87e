package store

import (
	"context"

	"gorm.io/gorm"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
)

func reportPoint(r model.SafetyReport) geo.Point {
	return geo.Point{Lat: r.Location.Latitude, Lon: r.Location.Longitude}
}

// CreateReport inserts a safety report
func (s *Store) CreateReport(ctx context.Context, report *model.SafetyReport) error {
	return translate(s.withContext(ctx).Create(report).Error)
}

// ListReports returns every report, newest first
func (s *Store) ListReports(ctx context.Context) ([]model.SafetyReport, error) {
	var reports []model.SafetyReport
	err := s.withContext(ctx).Order("created_at DESC").Find(&reports).Error
	return reports, err
}

// GetReport returns a report by id
func (s *Store) GetReport(ctx context.Context, id string) (*model.SafetyReport, error) {
	var report model.SafetyReport
	if err := s.withContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

// UpvoteReport increments the upvote counter in place and returns the new value
func (s *Store) UpvoteReport(ctx context.Context, id string) (int, error) {
	var upvotes int
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SafetyReport{}).
			Where("id = ?", id).
			UpdateColumn("upvotes", gorm.Expr("upvotes + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&model.SafetyReport{}).
			Where("id = ?", id).
			Pluck("upvotes", &upvotes).Error
	})
	return upvotes, translate(err)
}

// ReportsNear returns reports within radius meters of center, nearest first.
// A positive limit keeps only the closest ones.
func (s *Store) ReportsNear(ctx context.Context, center geo.Point, radius float64, limit int) ([]model.SafetyReport, error) {
	candidates, err := s.ReportsInBox(ctx, geo.BoundingBox(center, radius))
	if err != nil {
		return nil, err
	}
	return geo.Near(candidates, center, radius, limit, reportPoint), nil
}

// LatestReportsNear returns the newest reports within radius meters of center.
// The box is read page by page, at most CandidateLimit rows in total.
func (s *Store) LatestReportsNear(ctx context.Context, center geo.Point, radius float64, limit int) ([]model.SafetyReport, error) {
	box := geo.BoundingBox(center, radius)
	batch := limit
	if batch <= 0 || batch > s.candidateLimit {
		batch = s.candidateLimit
	}

	reports := []model.SafetyReport{}
	for offset := 0; offset < s.candidateLimit; offset += batch {
		size := min(batch, s.candidateLimit-offset)
		var page []model.SafetyReport
		err := inBox(s.withContext(ctx), box).
			Order("created_at DESC").Order("id").
			Limit(size).Offset(offset).
			Find(&page).Error
		if err != nil {
			return nil, err
		}

		for _, r := range page {
			if geo.Distance(center, reportPoint(r)) > radius {
				continue
			}
			reports = append(reports, r)
			if limit > 0 && len(reports) == limit {
				return reports, nil
			}
		}
		if len(page) < size {
			break
		}
	}
	return reports, nil
}

// ReportsInBox returns the newest reports inside the box, at most CandidateLimit of them
func (s *Store) ReportsInBox(ctx context.Context, box geo.Box) ([]model.SafetyReport, error) {
	var reports []model.SafetyReport
	err := inBox(s.withContext(ctx), box).
		Order("created_at DESC").
		Limit(s.candidateLimit).
		Find(&reports).Error
	return reports, err
}

// ReportStats aggregates totals, mean rating and counts per type
func (s *Store) ReportStats(ctx context.Context) (*model.ReportStats, error) {
	db := s.withContext(ctx)
	stats := &model.ReportStats{ReportsByType: []model.ReportTypeCount{}}

	if err := db.Model(&model.SafetyReport{}).Count(&stats.TotalReports).Error; err != nil {
		return nil, err
	}
	if stats.TotalReports == 0 {
		return stats, nil
	}

	var avg struct{ Average float64 }
	if err := db.Model(&model.SafetyReport{}).
		Select("AVG(safety_rating) AS average").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	stats.AverageRating = avg.Average

	if err := db.Model(&model.SafetyReport{}).
		Select("report_type, COUNT(*) AS count").
		Group("report_type").
		Order("report_type").
		Scan(&stats.ReportsByType).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
