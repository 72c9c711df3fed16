package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rentwise/rentwise/internal/cache"
	"github.com/rentwise/rentwise/internal/models"
	apperrors "github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/logger"
	"github.com/rentwise/rentwise/pkg/metrics"
)

// Live event names emitted to a user's connections.
const (
	EventNotification        = "notification"
	EventNotificationRead    = "notification.read"
	EventNotificationUpdated = "notification.updated"
	EventNotificationDeleted = "notification.deleted"
	EventNotificationReadAll = "notification.read_all"
)

const (
	defaultListLimit    = 25
	maxListLimit        = 100
	defaultUnreadTTL    = 30 * time.Second
	maxNotificationType = 64
	maxNotificationHead = 255
)

// Emitter pushes a named event to every live connection of a user. Implementations
// must not block and must swallow their own delivery failures.
type Emitter interface {
	EmitToUser(userID, event string, data any)
}

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    json.RawMessage
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	Limit      int
	Offset     int
	UnreadOnly bool
}

// Page returns the effective limit and offset after defaults and caps are applied.
func (in ListNotificationsInput) Page() (limit, offset int) {
	limit = in.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return limit, max(0, in.Offset)
}

// NotificationEventPayload represents data sent to realtime consumers for state changes.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// NotificationServiceOption customises a NotificationService.
type NotificationServiceOption func(*NotificationService)

// WithUnreadCountCache caches unread counters in store for ttl.
func WithUnreadCountCache(store cache.Store, ttl time.Duration) NotificationServiceOption {
	return func(s *NotificationService) {
		if ttl <= 0 {
			ttl = defaultUnreadTTL
		}
		if store == nil {
			s.unread = nil
			return
		}
		s.unread, _ = cache.NewUnreadCounters(store, ttl)
	}
}

// WithNotificationClock overrides the time source used for read timestamps.
func WithNotificationClock(clock func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NotificationService persists user notifications and fans them out to live connections.
type NotificationService struct {
	db       *gorm.DB
	emitter  Emitter
	unread   *cache.UnreadCounters
	now      func() time.Time
	log      *zap.Logger
}

// NewNotificationService constructs a NotificationService. A nil emitter means
// notifications are persisted only.
func NewNotificationService(db *gorm.DB, emitter Emitter, opts ...NotificationServiceOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}

	svc := &NotificationService{
		db:      db,
		emitter: emitter,
		now:     utcNow,
		log:     logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Create inserts exactly one notification for the recipient and, when an emitter
// is configured, pushes the stored row as a "notification" event. Delivery is
// fire-and-forget; only persistence failures are returned.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	notification, err := buildNotification(input)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		metrics.NotificationsPersisted.WithLabelValues("failure").Inc()
		if isForeignKeyError(err) {
			return nil, apperrors.ErrRecipientNotFound.WithInternal(err)
		}
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	metrics.NotificationsPersisted.WithLabelValues("success").Inc()

	s.invalidateUnread(ctx, notification.UserID)

	dto := mapNotification(*notification)
	s.emit(notification.UserID, EventNotification, &dto)
	return &dto, nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit, offset := input.Page()

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return mapNotificationRows(rows), nil
}

// CountUnread returns the number of unread notifications for a user.
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("notification service: user id is required")
	}

	cacheable := false
	var generation int64
	if s.unread != nil {
		var err error
		if generation, err = s.unread.Generation(ctx, userID); err != nil {
			s.log.Warn("unread count cache read failed", logger.UserID(userID), zap.Error(err))
		} else if count, ok, err := s.unread.Lookup(ctx, userID, generation); err != nil {
			s.log.Warn("unread count cache read failed", logger.UserID(userID), zap.Error(err))
		} else if ok {
			return count, nil
		} else {
			cacheable = true
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}

	if cacheable {
		if err := s.unread.Fill(ctx, userID, generation, count); err != nil {
			s.log.Warn("unread count cache write failed", logger.UserID(userID), zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}
	notification.IsRead = true
	notification.ReadAt = &now

	s.invalidateUnread(ctx, userID)

	dto := mapNotification(*notification)
	s.emit(userID, EventNotificationRead, &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// MarkUnread unsets the notification read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": false,
			"read_at": nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark unread: %w", err)
	}
	notification.IsRead = false
	notification.ReadAt = nil

	s.invalidateUnread(ctx, userID)

	dto := mapNotification(*notification)
	s.emit(userID, EventNotificationUpdated, &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// MarkAllRead marks all notifications for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("notification service: user id is required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": s.now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	s.invalidateUnread(ctx, userID)
	s.emit(userID, EventNotificationReadAll, nil)
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotificationNotFound
	}

	s.invalidateUnread(ctx, userID)
	s.emit(userID, EventNotificationDeleted, &NotificationEventPayload{
		NotificationID: notificationID,
	})
	return nil
}

// PurgeReadOlderThan deletes read notifications created before cutoff.
func (s *NotificationService) PurgeReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff.UTC()).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge read notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *NotificationService) loadOwned(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

func (s *NotificationService) emit(userID, event string, data any) {
	if s.emitter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notification emit panicked",
				logger.UserID(userID),
				zap.String("event", event),
				zap.Any("panic", r),
			)
		}
	}()
	s.emitter.EmitToUser(userID, event, data)
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.unread == nil {
		return
	}
	if err := s.unread.Invalidate(ctx, userID); err != nil {
		s.log.Warn("unread count cache invalidation failed", logger.UserID(userID), zap.Error(err))
	}
}

func buildNotification(input CreateNotificationInput) (*models.Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.InvalidNotification("user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, apperrors.InvalidNotification("type is required")
	}
	if len(notificationType) > maxNotificationType {
		return nil, apperrors.InvalidNotification("type is too long")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.InvalidNotification("title is required")
	}
	if len(title) > maxNotificationHead {
		return nil, apperrors.InvalidNotification("title is too long")
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.InvalidNotification("message is required")
	}

	notification := &models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
	}

	payload := strings.TrimSpace(string(input.Data))
	if payload != "" && payload != "null" {
		if !json.Valid([]byte(payload)) {
			return nil, apperrors.InvalidNotification("data must be valid JSON")
		}
		notification.Data = datatypes.JSON(payload)
	}
	return notification, nil
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ReadAt:    row.ReadAt,
	}
	if len(row.Data) > 0 && string(row.Data) != "null" {
		dto.Data = json.RawMessage(row.Data)
	}
	return dto
}
