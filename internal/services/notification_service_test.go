package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rentwise/rentwise/internal/cache"
	"github.com/rentwise/rentwise/internal/database/testutil"
	"github.com/rentwise/rentwise/internal/models"
	apperrors "github.com/rentwise/rentwise/pkg/errors"
)

func setupNotificationService(t *testing.T, emitter Emitter, opts ...NotificationServiceOption) (*NotificationService, *gorm.DB, *models.User) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	user := testutil.MustCreateUser(t, db, "tenant@example.com")

	svc, err := NewNotificationService(db, emitter, opts...)
	require.NoError(t, err)
	return svc, db, user
}

func TestNotificationServiceCreatePersistsAndEmits(t *testing.T) {
	emitter := &recordingEmitter{}
	svc, _, user := setupNotificationService(t, emitter)
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:  user.ID,
		Type:    "payment",
		Title:   "Paid",
		Message: "ok",
		Data:    json.RawMessage(`{"amount":1200,"currency":"USD"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)
	require.Equal(t, user.ID, dto.UserID)
	require.False(t, dto.IsRead)
	require.False(t, dto.CreatedAt.IsZero())
	require.JSONEq(t, `{"amount":1200,"currency":"USD"}`, string(dto.Data))

	events := emitter.Events()
	require.Len(t, events, 1)
	require.Equal(t, user.ID, events[0].UserID)
	require.Equal(t, EventNotification, events[0].Event)

	emitted, ok := events[0].Data.(*NotificationDTO)
	require.True(t, ok)
	require.Equal(t, dto.ID, emitted.ID)
	require.Equal(t, "payment", emitted.Type)

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, dto.ID, items[0].ID)
}

func TestNotificationServiceCreateWithoutEmitterPersistsOnly(t *testing.T) {
	svc, db, user := setupNotificationService(t, nil)

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  user.ID,
		Type:    "reservation",
		Title:   "Reservation confirmed",
		Message: "Your stay is booked.",
	})
	require.NoError(t, err)
	require.Nil(t, dto.Data)

	var nullData int64
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ? AND data IS NULL", dto.ID).Count(&nullData).Error)
	require.EqualValues(t, 1, nullData)

	items, err := svc.ListForUser(context.Background(), ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, items[0].Data)
}

func TestNotificationServiceCreateIdenticalCallsProduceDistinctRows(t *testing.T) {
	svc, _, user := setupNotificationService(t, nil)
	ctx := context.Background()

	input := CreateNotificationInput{UserID: user.ID, Type: "payment", Title: "Paid", Message: "ok"}
	first, err := svc.Create(ctx, input)
	require.NoError(t, err)
	second, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestNotificationServiceCreateValidation(t *testing.T) {
	emitter := &recordingEmitter{}
	svc, _, user := setupNotificationService(t, emitter)
	ctx := context.Background()

	cases := []CreateNotificationInput{
		{Type: "payment", Title: "Paid", Message: "ok"},
		{UserID: user.ID, Title: "Paid", Message: "ok"},
		{UserID: user.ID, Type: "payment", Message: "ok"},
		{UserID: user.ID, Type: "payment", Title: "Paid", Message: "   "},
		{UserID: user.ID, Type: "payment", Title: "Paid", Message: "ok", Data: json.RawMessage(`{"broken":`)},
	}
	for _, input := range cases {
		_, err := svc.Create(ctx, input)
		require.ErrorIs(t, err, apperrors.ErrInvalidNotification)
		require.Equal(t, "INVALID_NOTIFICATION", apperrors.FromError(err).Code)
	}
	require.Empty(t, emitter.Events())
}

func TestNotificationServiceCreateUnknownRecipientFails(t *testing.T) {
	emitter := &recordingEmitter{}
	svc, _, _ := setupNotificationService(t, emitter)

	_, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  "7d4f6a2e-0000-4000-8000-000000000000",
		Type:    "payment",
		Title:   "Paid",
		Message: "ok",
	})
	require.ErrorIs(t, err, apperrors.ErrRecipientNotFound)
	require.Empty(t, emitter.Events())
}

func TestNotificationServiceEmitFailureDoesNotFailCreate(t *testing.T) {
	svc, _, user := setupNotificationService(t, panickingEmitter{})

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  user.ID,
		Type:    "payment",
		Title:   "Paid",
		Message: "ok",
	})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)
}

func TestNotificationServiceListOrderingAndFilters(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db, user := setupNotificationService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		row := models.Notification{
			BaseModel: models.BaseModel{CreatedAt: current.Add(time.Duration(i) * time.Minute)},
			UserID:    user.ID,
			Type:      "payment",
			Title:     "Paid",
			Message:   "ok",
			IsRead:    i == 0,
		}
		require.NoError(t, db.Create(&row).Error)
	}

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.True(t, items[0].CreatedAt.After(items[1].CreatedAt))
	require.True(t, items[1].CreatedAt.After(items[2].CreatedAt))

	unread, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 2)

	page, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, items[1].ID, page[0].ID)

	_, err = svc.ListForUser(ctx, ListNotificationsInput{})
	require.Error(t, err)
}

func TestNotificationServiceMarkReadAndUnread(t *testing.T) {
	emitter := &recordingEmitter{}
	svc, _, user := setupNotificationService(t, emitter)
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:  user.ID,
		Type:    "reservation",
		Title:   "Reservation confirmed",
		Message: "Your stay is booked.",
	})
	require.NoError(t, err)

	read, err := svc.MarkRead(ctx, user.ID, dto.ID)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	unread, err := svc.MarkUnread(ctx, user.ID, dto.ID)
	require.NoError(t, err)
	require.False(t, unread.IsRead)
	require.Nil(t, unread.ReadAt)

	events := emitter.Events()
	require.Len(t, events, 3)
	require.Equal(t, EventNotificationRead, events[1].Event)
	require.Equal(t, EventNotificationUpdated, events[2].Event)
}

func TestNotificationServiceOwnershipIsEnforced(t *testing.T) {
	svc, db, owner := setupNotificationService(t, nil)
	other := testutil.MustCreateUser(t, db, "landlord@example.com")
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateNotificationInput{UserID: owner.ID, Type: "payment", Title: "Paid", Message: "ok"})
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, other.ID, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotificationNotFound)

	err = svc.Delete(ctx, other.ID, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotificationNotFound)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, owner.ID, stored.UserID)
	require.False(t, stored.IsRead)
}

func TestNotificationServiceMarkAllReadAndDelete(t *testing.T) {
	emitter := &recordingEmitter{}
	svc, _, user := setupNotificationService(t, emitter)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "payment", Title: "Paid", Message: "ok"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "payment", Title: "Paid", Message: "again"})
	require.NoError(t, err)

	updated, err := svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated)

	count, err := svc.CountUnread(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, svc.Delete(ctx, user.ID, first.ID))
	err = svc.Delete(ctx, user.ID, first.ID)
	require.ErrorIs(t, err, apperrors.ErrNotificationNotFound)

	events := emitter.Events()
	require.Equal(t, EventNotificationReadAll, events[2].Event)
	require.Equal(t, EventNotificationDeleted, events[3].Event)
	payload, ok := events[3].Data.(*NotificationEventPayload)
	require.True(t, ok)
	require.Equal(t, first.ID, payload.NotificationID)
}

func TestNotificationServiceUnreadCountCache(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	user := testutil.MustCreateUser(t, db, "cached@example.com")
	store := cache.NewDatabaseStore(db)

	svc, err := NewNotificationService(db, nil, WithUnreadCountCache(store, time.Minute))
	require.NoError(t, err)
	ctx := context.Background()

	count, err := svc.CountUnread(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	cached, ok, err := store.Get(ctx, "notifications:unread:"+user.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0:0", string(cached))

	_, err = svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "payment", Title: "Paid", Message: "ok"})
	require.NoError(t, err)

	_, ok, err = store.Get(ctx, "notifications:unread:"+user.ID)
	require.NoError(t, err)
	require.False(t, ok)

	count, err = svc.CountUnread(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

// beforeFillStore runs hook once, just before the first cached write.
type beforeFillStore struct {
	cache.Store
	once sync.Once
	hook func()
}

func (s *beforeFillStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.once.Do(s.hook)
	return s.Store.Set(ctx, key, value, ttl)
}

func TestNotificationServiceUnreadCountIgnoresStaleWriteBack(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	user := testutil.MustCreateUser(t, db, "stale@example.com")
	ctx := context.Background()

	var svc *NotificationService
	store := &beforeFillStore{Store: cache.NewDatabaseStore(db)}
	store.hook = func() {
		_, err := svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "payment", Title: "Paid", Message: "ok"})
		require.NoError(t, err)
	}

	var err error
	svc, err = NewNotificationService(db, nil, WithUnreadCountCache(store, time.Minute))
	require.NoError(t, err)

	// The first count races with the create above and writes back zero.
	count, err := svc.CountUnread(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = svc.CountUnread(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = svc.CountUnread(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestNotificationServicePurgeReadOlderThan(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, db, user := setupNotificationService(t, nil)

	rows := []models.Notification{
		{BaseModel: models.BaseModel{CreatedAt: now.Add(-60 * 24 * time.Hour)}, UserID: user.ID, Type: "payment", Title: "Old read", Message: "ok", IsRead: true},
		{BaseModel: models.BaseModel{CreatedAt: now.Add(-60 * 24 * time.Hour)}, UserID: user.ID, Type: "payment", Title: "Old unread", Message: "ok"},
		{BaseModel: models.BaseModel{CreatedAt: now.Add(-time.Hour)}, UserID: user.ID, Type: "payment", Title: "Recent read", Message: "ok", IsRead: true},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	removed, err := svc.PurgeReadOlderThan(context.Background(), now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}

func TestNewNotificationServiceRequiresDB(t *testing.T) {
	_, err := NewNotificationService(nil, nil)
	require.Error(t, err)
}
