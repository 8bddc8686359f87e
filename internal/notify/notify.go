// Package notify delivers SOS notifications to trusted contacts.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aegisher/api/internal/model"
)

// Message is one notification addressed to a trusted contact
type Message struct {
	AlertID       string              `json:"alertId"`
	UserName      string              `json:"userName"`
	UserPhone     string              `json:"userPhone"`
	ContactName   string              `json:"contactName"`
	ContactPhone  string              `json:"contactPhone"`
	Latitude      float64             `json:"latitude"`
	Longitude     float64             `json:"longitude"`
	Address       string              `json:"address"`
	TriggerMethod model.TriggerMethod `json:"triggerMethod"`
	Text          string              `json:"text"`
	Time          time.Time           `json:"time"`
}

// Notifier sends a message through a provider. Retries are the provider's concern.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Recorder observes delivery outcomes
type Recorder interface {
	Delivery(status string)
}

// Dispatcher fans an SOS alert out to every contact of the user's circle
type Dispatcher struct {
	notifier Notifier
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(notifier Notifier, recorder Recorder, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch notifies each trusted contact in circle order and returns one record per contact.
// A nil user is an anonymous alert and notifies nobody.
func (d *Dispatcher) Dispatch(ctx context.Context, user *model.User, alert *model.SOSAlert) []model.DeliveryRecord {
	records := make([]model.DeliveryRecord, 0)
	if user == nil {
		return records
	}

	d.log.Warn("SOS alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("user", user.Name),
		zap.String("phone", user.Phone),
		zap.Float64("lat", alert.Location.Latitude),
		zap.Float64("lon", alert.Location.Longitude),
		zap.String("trigger_method", string(alert.TriggerMethod)),
		zap.Int("contacts", len(user.TrustedCircle)),
	)

	for _, contact := range user.TrustedCircle {
		msg := Message{
			AlertID:       alert.ID,
			UserName:      user.Name,
			UserPhone:     user.Phone,
			ContactName:   contact.Name,
			ContactPhone:  contact.Phone,
			Latitude:      alert.Location.Latitude,
			Longitude:     alert.Location.Longitude,
			Address:       alert.Location.Address,
			TriggerMethod: alert.TriggerMethod,
			Text:          Text(user.Name, alert.Location.Address),
			Time:          d.now(),
		}

		status := model.DeliverySent
		if err := d.notifier.Notify(ctx, msg); err != nil {
			status = model.DeliveryFailed
			d.log.Error("notify contact failed",
				zap.String("alert_id", alert.ID),
				zap.String("contact", contact.Name),
				zap.Error(err),
			)
		}
		if d.recorder != nil {
			d.recorder.Delivery(string(status))
		}

		records = append(records, model.DeliveryRecord{
			ContactName:  contact.Name,
			ContactPhone: contact.Phone,
			SentAt:       d.now(),
			Status:       status,
		})
	}
	return records
}

// Text renders the SMS body
func Text(userName, address string) string {
	where := address
	if where == "" || where == model.UnknownAddress {
		where = "View map link"
	}
	return fmt.Sprintf("EMERGENCY! %s has triggered an SOS alert. Location: %s. Please check on them immediately!", userName, where)
}

// LogNotifier only logs messages. Every delivery succeeds.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Info("sending alert",
		zap.String("contact", msg.ContactName),
		zap.String("phone", msg.ContactPhone),
		zap.String("text", msg.Text),
	)
	return nil
}
