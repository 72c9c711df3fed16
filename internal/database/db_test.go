package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rentwise/rentwise/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	for _, model := range []any{&models.User{}, &models.Notification{}, &models.CacheEntry{}} {
		require.True(t, db.Migrator().HasTable(model))
	}
}

func TestNotificationRequiresExistingUser(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	err := db.Create(&models.Notification{
		UserID:  "00000000-0000-0000-0000-000000000000",
		Type:    "payment_completed",
		Title:   "Payment received",
		Message: "Your payment was processed.",
	}).Error
	require.Error(t, err)
}

func TestPingNilHandle(t *testing.T) {
	require.Error(t, Ping(context.Background(), nil))
	require.NoError(t, Close(nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
