package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
	"aegisher/api/internal/store"
	"aegisher/api/internal/store/storetest"
)

func newReport(lat, lon float64, rating int, createdAt time.Time) *model.SafetyReport {
	return &model.SafetyReport{
		Location: model.PlaceLocation{
			Location: model.Location{Latitude: lat, Longitude: lon, Address: model.UnknownAddress},
		},
		SafetyRating: rating,
		ReportType:   model.ReportTypeGeneral,
		TimeOfDay:    model.TimeNight,
		CreatedAt:    createdAt,
	}
}

func TestReportsNearOrdersByDistance(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	far := newReport(12.915, 77.6, 1, now)    // ~1.7km
	near := newReport(12.901, 77.6, 2, now)   // ~110m
	outside := newReport(12.95, 77.6, 3, now) // ~5.5km
	mid := newReport(12.905, 77.6, 4, now)    // ~550m
	for _, r := range []*model.SafetyReport{far, near, outside, mid} {
		require.NoError(t, s.CreateReport(ctx, r))
		require.NotEmpty(t, r.ID)
	}

	got, err := s.ReportsNear(ctx, geo.Point{Lat: 12.9, Lon: 77.6}, 2000, 20)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, near.ID, got[0].ID)
	assert.Equal(t, mid.ID, got[1].ID)
	assert.Equal(t, far.ID, got[2].ID)

	limited, err := s.ReportsNear(ctx, geo.Point{Lat: 12.9, Lon: 77.6}, 2000, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, near.ID, limited[0].ID)
}

func TestLatestReportsNearOrdersByCreation(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := newReport(12.901, 77.6, 2, base)
	newer := newReport(12.91, 77.6, 2, base.Add(time.Hour))
	outside := newReport(13.5, 77.6, 2, base.Add(2*time.Hour))
	for _, r := range []*model.SafetyReport{older, newer, outside} {
		require.NoError(t, s.CreateReport(ctx, r))
	}

	got, err := s.LatestReportsNear(ctx, geo.Point{Lat: 12.9, Lon: 77.6}, 5000, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}

func TestProximityQueriesReadAtMostCandidateLimit(t *testing.T) {
	s := storetest.New(t, store.WithCandidateLimit(5))
	ctx := context.Background()
	center := geo.Point{Lat: 12.9, Lon: 77.6}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 5, s.CandidateLimit())

	// four older reports inside the circle, four newer ones in the box corners outside it
	var inside []*model.SafetyReport
	for i := 0; i < 4; i++ {
		r := newReport(12.9+float64(i)*0.0005, 77.6, 3, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateReport(ctx, r))
		inside = append(inside, r)
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, s.CreateReport(ctx, newReport(12.908, 77.608, 3, base.Add(time.Hour+time.Duration(i)*time.Minute))))
	}

	boxed, err := s.ReportsInBox(ctx, geo.BoundingBox(center, 1000))
	require.NoError(t, err)
	assert.Len(t, boxed, 5)

	// pages of two: the cap stops the scan after one in-circle report
	got, err := s.LatestReportsNear(ctx, center, 1000, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside[3].ID, got[0].ID)

	roomy := storetest.New(t)
	for _, r := range inside {
		r.ID = ""
		require.NoError(t, roomy.CreateReport(ctx, r))
	}
	got, err = roomy.LatestReportsNear(ctx, center, 1000, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, store.DefaultCandidateLimit, roomy.CandidateLimit())
}

func TestGetReportNotFound(t *testing.T) {
	s := storetest.New(t)
	_, err := s.GetReport(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpvoteReport(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentUpvotes(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	r := newReport(12.9, 77.6, 3, time.Now().UTC())
	require.NoError(t, s.CreateReport(ctx, r))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpvoteReport(ctx, r.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Upvotes)
}

func TestReportStats(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	empty, err := s.ReportStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalReports)
	assert.Empty(t, empty.ReportsByType)

	now := time.Now().UTC()
	for i, typ := range []model.ReportType{model.ReportTypeLighting, model.ReportTypeLighting, model.ReportTypeIncident} {
		r := newReport(12.9, 77.6, i+2, now)
		r.ReportType = typ
		require.NoError(t, s.CreateReport(ctx, r))
	}

	stats, err := s.ReportStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalReports)
	assert.InDelta(t, 3.0, stats.AverageRating, 1e-9)
	assert.Equal(t, []model.ReportTypeCount{
		{Type: model.ReportTypeIncident, Count: 1},
		{Type: model.ReportTypeLighting, Count: 2},
	}, stats.ReportsByType)
}

func TestResolveAlertSingleWinner(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	alert := &model.SOSAlert{
		Location:      model.Location{Latitude: 12.9, Longitude: 77.6, Address: model.UnknownAddress},
		TriggerMethod: model.TriggerManual,
		Status:        model.SOSStatusActive,
		AlertsSent: []model.DeliveryRecord{
			{ContactName: "Asha", ContactPhone: "+911", SentAt: time.Now().UTC(), Status: model.DeliverySent},
			{ContactName: "Ravi", ContactPhone: "+912", SentAt: time.Now().UTC(), Status: model.DeliverySent},
		},
	}
	require.NoError(t, s.CreateAlert(ctx, alert))

	at := time.Now().UTC()
	resolved, err := s.ResolveAlert(ctx, alert.ID, model.SOSStatusFalseAlarm, at)
	require.NoError(t, err)
	assert.Equal(t, model.SOSStatusFalseAlarm, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.Len(t, resolved.AlertsSent, 2)
	assert.Equal(t, "Asha", resolved.AlertsSent[0].ContactName)

	again, err := s.ResolveAlert(ctx, alert.ID, model.SOSStatusResolved, at.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrNotActive)
	assert.Equal(t, model.SOSStatusFalseAlarm, again.Status)

	_, err = s.ResolveAlert(ctx, "missing", model.SOSStatusResolved, at)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAlertsNearHonorsWindow(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recent := &model.SOSAlert{
		Location: model.Location{Latitude: 12.91, Longitude: 77.6}, TriggerMethod: model.TriggerVoice,
		Status: model.SOSStatusActive, CreatedAt: now.Add(-24 * time.Hour),
	}
	stale := &model.SOSAlert{
		Location: model.Location{Latitude: 12.91, Longitude: 77.6}, TriggerMethod: model.TriggerVoice,
		Status: model.SOSStatusActive, CreatedAt: now.Add(-8 * 24 * time.Hour),
	}
	require.NoError(t, s.CreateAlert(ctx, recent))
	require.NoError(t, s.CreateAlert(ctx, stale))

	got, err := s.AlertsNear(ctx, geo.Point{Lat: 12.9, Lon: 77.6}, 5000, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)

	old, err := s.StaleActiveAlerts(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, old, 2)

	claimed, err := s.ClaimReminder(ctx, stale.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = s.ClaimReminder(ctx, stale.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	old, err = s.StaleActiveAlerts(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, recent.ID, old[0].ID)
}

func TestAlertHistoryNewestFirst(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	userID := "user-1"
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateAlert(ctx, &model.SOSAlert{
			UserID:        &userID,
			Location:      model.Location{Latitude: 1, Longitude: 1},
			TriggerMethod: model.TriggerManual,
			Status:        model.SOSStatusActive,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.AlertHistory(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestTrustedCircle(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	user := &model.User{Name: "Meera", Email: "meera@example.com", Phone: "+910"}
	require.NoError(t, s.CreateUser(ctx, user))
	assert.ErrorIs(t, s.CreateUser(ctx, &model.User{Name: "Dup", Email: "meera@example.com", Phone: "+911"}), store.ErrDuplicate)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, phone := range []string{"+100", "+200"} {
		require.NoError(t, s.AddContact(ctx, user.ID, &model.TrustedContact{
			Name:         fmt.Sprintf("contact-%d", i),
			Phone:        phone,
			Relationship: model.RelationshipFriend,
			AddedAt:      base.Add(time.Duration(i) * time.Hour),
		}))
	}
	err := s.AddContact(ctx, user.ID, &model.TrustedContact{Name: "again", Phone: "+100", Relationship: model.RelationshipOther, AddedAt: base})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	err = s.AddContact(ctx, "missing", &model.TrustedContact{Name: "x", Phone: "+1", Relationship: model.RelationshipOther, AddedAt: base})
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	loaded, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, loaded.TrustedCircle, 2)
	assert.Equal(t, "+100", loaded.TrustedCircle[0].Phone)

	first := loaded.TrustedCircle[0]
	_, err = s.UpdateContact(ctx, user.ID, first.ID, func(c *model.TrustedContact) error {
		c.Phone = "+200"
		return nil
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	updated, err := s.UpdateContact(ctx, user.ID, first.ID, func(c *model.TrustedContact) error {
		c.IsPrimary = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsPrimary)

	require.NoError(t, s.DeleteContact(ctx, user.ID, first.ID))
	assert.ErrorIs(t, s.DeleteContact(ctx, user.ID, first.ID), store.ErrNotFound)

	contacts, err := s.ListContacts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "+200", contacts[0].Phone)
}
