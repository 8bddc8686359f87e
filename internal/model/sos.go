package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TriggerMethod SOS触发方式
type TriggerMethod string

const (
	TriggerManual           TriggerMethod = "manual"
	TriggerVoice            TriggerMethod = "voice"
	TriggerFallDetection    TriggerMethod = "fall_detection"
	TriggerSuspiciousMotion TriggerMethod = "suspicious_motion"
)

func (m TriggerMethod) Valid() bool {
	switch m {
	case TriggerManual, TriggerVoice, TriggerFallDetection, TriggerSuspiciousMotion:
		return true
	}
	return false
}

// SOSStatus SOS状态
type SOSStatus string

const (
	SOSStatusActive     SOSStatus = "active"
	SOSStatusResolved   SOSStatus = "resolved"
	SOSStatusFalseAlarm SOSStatus = "false_alarm"
)

func (s SOSStatus) Valid() bool {
	switch s {
	case SOSStatusActive, SOSStatusResolved, SOSStatusFalseAlarm:
		return true
	}
	return false
}

// Terminal 是否为终态
func (s SOSStatus) Terminal() bool {
	return s == SOSStatusResolved || s == SOSStatusFalseAlarm
}

// DeliveryStatus 通知投递状态
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryDelivered DeliveryStatus = "delivered"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliverySent, DeliveryFailed, DeliveryDelivered:
		return true
	}
	return false
}

// SOSAlert SOS紧急求助记录
type SOSAlert struct {
	ID            string           `json:"_id" gorm:"primaryKey;type:varchar(36)"`
	UserID        *string          `json:"userId" gorm:"column:user_id;type:varchar(36);index"`
	Location      Location         `json:"location" gorm:"embedded"`
	TriggerMethod TriggerMethod    `json:"triggerMethod" gorm:"column:trigger_method;type:varchar(30);not null"`
	Status        SOSStatus        `json:"status" gorm:"type:varchar(20);not null;index"`
	AlertsSent    []DeliveryRecord `json:"alertsSent" gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `json:"createdAt" gorm:"not null;index"`
	ResolvedAt    *time.Time       `json:"resolvedAt,omitempty" gorm:"column:resolved_at"`
	// set once the stale-alert reminder went out
	RemindedAt *time.Time `json:"remindedAt,omitempty" gorm:"column:reminded_at"`
}

func (SOSAlert) TableName() string {
	return "sos_alerts"
}

func (a *SOSAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// DeliveryRecord 单个紧急联系人的通知结果, 写入后不再修改
type DeliveryRecord struct {
	ID           uint           `json:"-" gorm:"primaryKey"`
	AlertID      string         `json:"-" gorm:"column:alert_id;type:varchar(36);not null;index"`
	ContactName  string         `json:"contactName" gorm:"column:contact_name;type:varchar(100)"`
	ContactPhone string         `json:"contactPhone" gorm:"column:contact_phone;type:varchar(32)"`
	SentAt       time.Time      `json:"sentAt" gorm:"column:sent_at;not null"`
	Status       DeliveryStatus `json:"status" gorm:"type:varchar(20);not null"`
}

func (DeliveryRecord) TableName() string {
	return "sos_deliveries"
}

// WSSOSMessage WebSocket SOS事件消息
type WSSOSMessage struct {
	Type string   `json:"type"` // "SOS_TRIGGERED" / "SOS_RESOLVED" / "SOS_REMINDER"
	Data SOSAlert `json:"data"`
}
