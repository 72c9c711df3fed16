package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelIDsAreTimeOrdered(t *testing.T) {
	var first, second BaseModel
	if err := first.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := second.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}

	parsed, err := uuid.Parse(first.ID)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected a version 7 uuid, got %d", parsed.Version())
	}
	if !(first.ID < second.ID) {
		t.Fatalf("expected %q to sort before %q", first.ID, second.ID)
	}
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if (CacheEntry{}).Expired(now) {
		t.Fatal("entry without expiry must never expire")
	}
	if (CacheEntry{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatal("entry expiring later is still live")
	}
	if !(CacheEntry{ExpiresAt: now}).Expired(now) {
		t.Fatal("entry is expired at its expiry instant")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected existing ID to be kept, got %q", base.ID)
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"notification", func() *BaseModel {
			n := &Notification{}
			return &n.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			if err := base.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if base.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestNotificationTableName(t *testing.T) {
	if name := (Notification{}).TableName(); name != "notifications" {
		t.Fatalf("expected notifications table, got %q", name)
	}
}
