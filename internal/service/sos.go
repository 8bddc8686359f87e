package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aegisher/api/internal/apperr"
	"aegisher/api/internal/geo"
	"aegisher/api/internal/metrics"
	"aegisher/api/internal/model"
	"aegisher/api/internal/notify"
	"aegisher/api/internal/store"
)

// SOSHistoryLimit caps the alerts returned by History
const SOSHistoryLimit = 50

// SOSService SOS 紧急求助服务
type SOSService struct {
	store      *store.Store
	dispatcher *notify.Dispatcher
	events     *EventPublisher
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

// NewSOSService 创建 SOS 服务, events 和 m 可为 nil
func NewSOSService(s *store.Store, dispatcher *notify.Dispatcher, events *EventPublisher, m *metrics.Metrics, log *zap.Logger) *SOSService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SOSService{
		store:      s,
		dispatcher: dispatcher,
		events:     events,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Trigger 触发 SOS: 校验用户, 通知紧急联系人, 保存告警并发布事件.
// An alert without a userId is anonymous and notifies nobody.
func (s *SOSService) Trigger(ctx context.Context, req *model.TriggerSOSRequest) (*model.SOSAlert, error) {
	if !req.Latitude.Set || !req.Longitude.Set {
		return nil, apperr.Validation("Missing required fields: latitude, longitude")
	}
	point := geo.Point{Lat: req.Latitude.Value, Lon: req.Longitude.Value}
	if err := validatePoint(point); err != nil {
		return nil, err
	}

	method := model.TriggerManual
	if m := strings.TrimSpace(req.TriggerMethod); m != "" {
		method = model.TriggerMethod(m)
		if !method.Valid() {
			return nil, apperr.Validation("Invalid triggerMethod: %s", m)
		}
	}

	var user *model.User
	userID := nonEmpty(req.UserID)
	if userID != nil {
		u, err := s.store.GetUser(ctx, *userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		if err != nil {
			return nil, apperr.Internal(err, "Failed to trigger SOS alert")
		}
		user = u
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = model.UnknownAddress
	}

	alert := &model.SOSAlert{
		ID:     uuid.NewString(),
		UserID: userID,
		Location: model.Location{
			Latitude:  point.Lat,
			Longitude: point.Lon,
			Address:   address,
		},
		TriggerMethod: method,
		Status:        model.SOSStatusActive,
		CreatedAt:     s.now(),
	}

	alert.AlertsSent = s.dispatcher.Dispatch(ctx, user, alert)

	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, apperr.Internal(err, "Failed to trigger SOS alert")
	}

	s.log.Info("sos alert stored",
		zap.String("alert_id", alert.ID),
		zap.Bool("anonymous", user == nil),
		zap.Int("alerts_sent", len(alert.AlertsSent)),
	)

	if user != nil {
		if err := s.store.TouchUser(ctx, user.ID, alert.CreatedAt); err != nil {
			s.log.Warn("update last active failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.metrics.SOSTriggered(string(method))
	s.events.Publish(ctx, EventSOSTriggered, alert)
	return alert, nil
}

// History 获取用户最近的 SOS 记录, 最新在前
func (s *SOSService) History(ctx context.Context, userID string) ([]model.SOSAlert, error) {
	alerts, err := s.store.AlertHistory(ctx, userID, SOSHistoryLimit)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch SOS history")
	}
	if alerts == nil {
		alerts = []model.SOSAlert{}
	}
	return alerts, nil
}

// Resolve moves an active alert to resolved or false_alarm. An empty status means resolved.
func (s *SOSService) Resolve(ctx context.Context, id, status string) (*model.SOSAlert, error) {
	target := model.SOSStatusResolved
	if st := strings.TrimSpace(status); st != "" {
		target = model.SOSStatus(st)
		if !target.Terminal() {
			return nil, apperr.Validation("Invalid status: must be resolved or false_alarm")
		}
	}

	alert, err := s.store.ResolveAlert(ctx, id, target, s.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("SOS alert not found")
	case errors.Is(err, store.ErrNotActive):
		return nil, apperr.Validation("SOS alert is already %s", alert.Status)
	case err != nil:
		return nil, apperr.Internal(err, "Failed to resolve SOS alert")
	}

	s.metrics.SOSResolved(string(target))
	s.events.Publish(ctx, EventSOSResolved, alert)
	return alert, nil
}

// RemindStale publishes one reminder per alert still active after the given age
func (s *SOSService) RemindStale(ctx context.Context, after time.Duration) (int, error) {
	alerts, err := s.store.StaleActiveAlerts(ctx, s.now().Add(-after))
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range alerts {
		at := s.now()
		claimed, err := s.store.ClaimReminder(ctx, alerts[i].ID, at)
		if err != nil {
			return sent, err
		}
		if !claimed {
			continue
		}
		alerts[i].RemindedAt = &at
		s.events.Publish(ctx, EventSOSReminder, &alerts[i])
		sent++
	}
	return sent, nil
}
