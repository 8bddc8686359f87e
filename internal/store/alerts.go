package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
)

func alertPoint(a model.SOSAlert) geo.Point {
	return geo.Point{Lat: a.Location.Latitude, Lon: a.Location.Longitude}
}

func preloadDeliveries(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

// CreateAlert inserts an alert together with its delivery records
func (s *Store) CreateAlert(ctx context.Context, alert *model.SOSAlert) error {
	return translate(s.withContext(ctx).Create(alert).Error)
}

// GetAlert returns an alert with its delivery records
func (s *Store) GetAlert(ctx context.Context, id string) (*model.SOSAlert, error) {
	var alert model.SOSAlert
	err := s.withContext(ctx).
		Preload("AlertsSent", preloadDeliveries).
		First(&alert, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}

// AlertHistory returns a user's most recent alerts, newest first
func (s *Store) AlertHistory(ctx context.Context, userID string, limit int) ([]model.SOSAlert, error) {
	var alerts []model.SOSAlert
	q := s.withContext(ctx).
		Preload("AlertsSent", preloadDeliveries).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&alerts).Error
	return alerts, err
}

// ResolveAlert moves an active alert to a terminal status.
// The update only matches active rows, so concurrent resolves have a single winner.
func (s *Store) ResolveAlert(ctx context.Context, id string, status model.SOSStatus, at time.Time) (*model.SOSAlert, error) {
	res := s.withContext(ctx).Model(&model.SOSAlert{}).
		Where("id = ? AND status = ?", id, model.SOSStatusActive).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": at,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return alert, ErrNotActive
	}
	return alert, nil
}

// AlertsNear returns alerts created since the given time within radius meters of center, nearest first
func (s *Store) AlertsNear(ctx context.Context, center geo.Point, radius float64, since time.Time) ([]model.SOSAlert, error) {
	candidates, err := s.AlertsInBox(ctx, geo.BoundingBox(center, radius), since)
	if err != nil {
		return nil, err
	}
	return geo.Near(candidates, center, radius, 0, alertPoint), nil
}

// AlertsInBox returns the newest alerts created since the given time inside the box,
// at most CandidateLimit of them, without delivery records
func (s *Store) AlertsInBox(ctx context.Context, box geo.Box, since time.Time) ([]model.SOSAlert, error) {
	var alerts []model.SOSAlert
	err := inBox(s.withContext(ctx), box).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(s.candidateLimit).
		Find(&alerts).Error
	return alerts, err
}

// StaleActiveAlerts returns up to CandidateLimit alerts still active and never reminded that were created before cutoff, oldest first
func (s *Store) StaleActiveAlerts(ctx context.Context, cutoff time.Time) ([]model.SOSAlert, error) {
	var alerts []model.SOSAlert
	err := s.withContext(ctx).
		Where("status = ? AND created_at < ? AND reminded_at IS NULL", model.SOSStatusActive, cutoff).
		Order("created_at").
		Limit(s.candidateLimit).
		Find(&alerts).Error
	return alerts, err
}

// ClaimReminder stamps reminded_at on an active alert that has none.
// It reports false when the alert was resolved or already reminded.
func (s *Store) ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.withContext(ctx).Model(&model.SOSAlert{}).
		Where("id = ? AND status = ? AND reminded_at IS NULL", id, model.SOSStatusActive).
		UpdateColumn("reminded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
