// SOS 事件发布: NATS Core 实时推送, JetStream 持久化, WebSocket 广播

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"aegisher/api/internal/model"
)

// SOS 事件类型
const (
	EventSOSTriggered = "SOS_TRIGGERED"
	EventSOSResolved  = "SOS_RESOLVED"
	EventSOSReminder  = "SOS_REMINDER"
)

// NATS subjects
const (
	SubjectSOSTriggered = "aegisher.sos.triggered"
	SubjectSOSResolved  = "aegisher.sos.resolved"
	SubjectSOSReminder  = "aegisher.sos.reminder"

	StreamSOS = "AEGISHER_SOS"
)

var eventSubjects = map[string]string{
	EventSOSTriggered: SubjectSOSTriggered,
	EventSOSResolved:  SubjectSOSResolved,
	EventSOSReminder:  SubjectSOSReminder,
}

// Broadcaster pushes SOS events to live clients
type Broadcaster interface {
	BroadcastSOS(msg *model.WSSOSMessage) error
}

// EventPublisher fans SOS lifecycle events out to NATS, JetStream and WebSocket clients.
// Every sink is optional.
type EventPublisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	hub Broadcaster
	log *zap.Logger
}

// NewEventPublisher 创建事件发布器, nc 和 hub 均可为 nil
func NewEventPublisher(nc *nats.Conn, hub Broadcaster, log *zap.Logger) *EventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventPublisher{nc: nc, hub: hub, log: log}
}

// EnableJetStream 创建(或更新) SOS Stream 并开启持久化
func (p *EventPublisher) EnableJetStream() error {
	if p.nc == nil {
		return errors.New("jetstream requires a nats connection")
	}
	js, err := p.nc.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamSOS,
		Subjects:  []string{"aegisher.sos.*"},
		Retention: nats.LimitsPolicy,
		MaxMsgs:   -1,
		MaxBytes:  1024 * 1024 * 1024, // 1GB
		MaxAge:    30 * 24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}
	if _, err := js.AddStream(cfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		// Stream已存在，更新配置
		if _, err := js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
		}
	}
	p.js = js
	return nil
}

// JetStreamEnabled reports whether events are persisted
func (p *EventPublisher) JetStreamEnabled() bool {
	return p != nil && p.js != nil
}

// StreamInfo 获取 SOS Stream 信息
func (p *EventPublisher) StreamInfo() (*nats.StreamInfo, error) {
	if !p.JetStreamEnabled() {
		return nil, errors.New("jetstream not enabled")
	}
	return p.js.StreamInfo(StreamSOS)
}

// Publish sends one event to every configured sink. Sink failures are logged, never returned.
func (p *EventPublisher) Publish(_ context.Context, eventType string, alert *model.SOSAlert) {
	if p == nil {
		return
	}
	msg := &model.WSSOSMessage{Type: eventType, Data: *alert}

	if p.hub != nil {
		if err := p.hub.BroadcastSOS(msg); err != nil {
			p.log.Warn("websocket broadcast failed", zap.String("event", eventType), zap.Error(err))
		}
	}

	if p.nc == nil {
		return
	}
	subject, ok := eventSubjects[eventType]
	if !ok {
		p.log.Warn("unknown sos event", zap.String("event", eventType))
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("marshal sos event", zap.Error(err))
		return
	}

	// JetStream 发布即持久化, 同时会投递给 Core 订阅者
	if p.js != nil {
		if _, err := p.js.Publish(subject, payload); err != nil {
			p.log.Warn("jetstream publish failed", zap.String("subject", subject), zap.Error(err))
		}
		return
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		p.log.Warn("nats publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
