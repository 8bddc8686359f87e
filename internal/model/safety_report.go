package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportType categorizes a community safety report
type ReportType string

const (
	ReportTypeLighting ReportType = "lighting"
	ReportTypeCrowding ReportType = "crowding"
	ReportTypeIncident ReportType = "incident"
	ReportTypeGeneral  ReportType = "general"
	ReportTypePositive ReportType = "positive"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeLighting, ReportTypeCrowding, ReportTypeIncident, ReportTypeGeneral, ReportTypePositive:
		return true
	}
	return false
}

// TimeOfDay is the coarse time bucket a report or prediction refers to
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeNight     TimeOfDay = "night"
)

func (t TimeOfDay) Valid() bool {
	switch t {
	case TimeMorning, TimeAfternoon, TimeEvening, TimeNight:
		return true
	}
	return false
}

const (
	MinSafetyRating = 1
	MaxSafetyRating = 5
)

// SafetyReport is a crowd-sourced rating of how safe a place feels
type SafetyReport struct {
	ID           string        `json:"_id" gorm:"primaryKey;type:varchar(36)"`
	UserID       *string       `json:"userId" gorm:"column:user_id;type:varchar(36);index"`
	Location     PlaceLocation `json:"location" gorm:"embedded"`
	SafetyRating int           `json:"safetyRating" gorm:"column:safety_rating;not null"`
	ReportType   ReportType    `json:"reportType" gorm:"column:report_type;type:varchar(20);not null;index"`
	Comment      string        `json:"comment" gorm:"type:varchar(500)"`
	TimeOfDay    TimeOfDay     `json:"timeOfDay" gorm:"column:time_of_day;type:varchar(20);not null"`
	Verified     bool          `json:"verified" gorm:"not null"`
	Upvotes      int           `json:"upvotes" gorm:"not null"`
	CreatedAt    time.Time     `json:"createdAt" gorm:"not null;index"`
}

func (SafetyReport) TableName() string {
	return "safety_reports"
}

func (r *SafetyReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ReportTypeCount is one row of the per-type aggregate
type ReportTypeCount struct {
	Type  ReportType `json:"_id" gorm:"column:report_type"`
	Count int64      `json:"count" gorm:"column:count"`
}

// ReportStats 安全报告统计
type ReportStats struct {
	TotalReports  int64             `json:"totalReports"`
	AverageRating float64           `json:"averageRating"`
	ReportsByType []ReportTypeCount `json:"reportsByType"`
}
