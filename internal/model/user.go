package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an app user and owner of a trusted circle
type User struct {
	ID            string           `json:"_id" gorm:"primaryKey;type:varchar(36)"`
	Name          string           `json:"name" gorm:"type:varchar(100);not null"`
	Email         string           `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Phone         string           `json:"phone" gorm:"type:varchar(32);not null"`
	TrustedCircle []TrustedContact `json:"trustedCircle" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `json:"createdAt" gorm:"not null"`
	LastActive    time.Time        `json:"lastActive" gorm:"column:last_active;not null"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Relationship describes how a trusted contact relates to the user
type Relationship string

const (
	RelationshipFamily    Relationship = "family"
	RelationshipFriend    Relationship = "friend"
	RelationshipColleague Relationship = "colleague"
	RelationshipOther     Relationship = "other"
)

func (r Relationship) Valid() bool {
	switch r {
	case RelationshipFamily, RelationshipFriend, RelationshipColleague, RelationshipOther:
		return true
	}
	return false
}

// TrustedContact is a person notified when the user triggers an SOS
type TrustedContact struct {
	ID           string       `json:"_id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string       `json:"-" gorm:"column:user_id;type:varchar(36);not null;uniqueIndex:idx_trusted_contacts_user_phone"`
	Name         string       `json:"name" gorm:"type:varchar(100);not null"`
	Phone        string       `json:"phone" gorm:"type:varchar(32);not null;uniqueIndex:idx_trusted_contacts_user_phone"`
	Relationship Relationship `json:"relationship" gorm:"type:varchar(20);not null"`
	IsPrimary    bool         `json:"isPrimary" gorm:"column:is_primary;not null"`
	AddedAt      time.Time    `json:"addedAt" gorm:"column:added_at;not null;index"`
}

func (TrustedContact) TableName() string {
	return "trusted_contacts"
}

func (c *TrustedContact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
