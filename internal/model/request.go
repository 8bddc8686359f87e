package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Number is a JSON number that also accepts numeric strings.
// Null, absent and empty-string values leave Set false.
type Number struct {
	Value float64
	Set   bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
	case float64:
	default:
		return fmt.Errorf("invalid number %s", string(data))
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return fmt.Errorf("invalid number %s", string(data))
	}
	n.Value, n.Set = v, true
	return nil
}

// SubmitReportRequest 提交安全报告请求
type SubmitReportRequest struct {
	UserID       *string `json:"userId" binding:"omitempty,max=36"`
	Latitude     Number  `json:"latitude"`
	Longitude    Number  `json:"longitude"`
	Address      string  `json:"address" binding:"max=255"`
	PlaceName    string  `json:"placeName" binding:"max=255"`
	SafetyRating Number  `json:"safetyRating"`
	ReportType   string  `json:"reportType" binding:"omitempty,oneof=lighting crowding incident general positive"`
	Comment      string  `json:"comment" binding:"max=500"`
	TimeOfDay    string  `json:"timeOfDay" binding:"omitempty,oneof=morning afternoon evening night"`
}

// TriggerSOSRequest 触发SOS请求
type TriggerSOSRequest struct {
	UserID        *string `json:"userId" binding:"omitempty,max=36"`
	Latitude      Number  `json:"latitude"`
	Longitude     Number  `json:"longitude"`
	Address       string  `json:"address" binding:"max=255"`
	TriggerMethod string  `json:"triggerMethod" binding:"omitempty,oneof=manual voice fall_detection suspicious_motion"`
}

// ResolveSOSRequest 处理SOS请求
type ResolveSOSRequest struct {
	Status string `json:"status"`
}

// CreateUserRequest creates a user
type CreateUserRequest struct {
	Name  string `json:"name" binding:"max=100"`
	Email string `json:"email" binding:"omitempty,email,max=255"`
	Phone string `json:"phone" binding:"max=32"`
}

// AddContactRequest adds a contact to a trusted circle
type AddContactRequest struct {
	Name         string `json:"name" binding:"max=100"`
	Phone        string `json:"phone" binding:"max=32"`
	Relationship string `json:"relationship" binding:"max=20"`
	IsPrimary    bool   `json:"isPrimary"`
}

// UpdateContactRequest patches a contact. Nil fields are left unchanged.
type UpdateContactRequest struct {
	Name         *string `json:"name" binding:"omitempty,max=100"`
	Phone        *string `json:"phone" binding:"omitempty,max=32"`
	Relationship *string `json:"relationship" binding:"omitempty,max=20"`
	IsPrimary    *bool   `json:"isPrimary"`
}

// AnalyzeRequest asks for a danger prediction at a point
type AnalyzeRequest struct {
	Latitude  Number `json:"latitude"`
	Longitude Number `json:"longitude"`
	TimeOfDay string `json:"timeOfDay"`
}

// CompareRoutesRequest asks for a safe vs normal route comparison
type CompareRoutesRequest struct {
	StartLatitude  Number `json:"startLatitude"`
	StartLongitude Number `json:"startLongitude"`
	EndLatitude    Number `json:"endLatitude"`
	EndLongitude   Number `json:"endLongitude"`
	TimeOfDay      string `json:"timeOfDay"`
}
