package models

import (
	"time"
)

// User is a marketplace account able to receive notifications.
type User struct {
	BaseModel

	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string `gorm:"type:varchar(128)" json:"display_name"`
	Password    string `gorm:"not null" json:"-"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
