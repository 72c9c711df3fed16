package models

import (
	"time"
)

// CacheEntry is one key of the SQL-backed cache used when Redis is disabled.
// It carries rate-limit windows and unread notification counters. A zero
// ExpiresAt never expires.
type CacheEntry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
