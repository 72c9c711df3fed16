package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a persisted in-app message addressed to exactly one user.
// The owning user never changes after insert.
type Notification struct {
	BaseModel

	UserID  string         `gorm:"size:36;not null;index" json:"user_id"`
	User    *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Type    string         `gorm:"type:varchar(64);not null" json:"type"`
	Title   string         `gorm:"type:varchar(255);not null" json:"title"`
	Message string         `gorm:"type:text;not null" json:"message"`
	Data    datatypes.JSON `json:"data,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// TableName pins the notifications table name.
func (Notification) TableName() string {
	return "notifications"
}
