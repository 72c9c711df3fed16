package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/services"
	"github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_MISCONFIGURED", "notification service is required", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service}, nil
}

// List returns notifications for the current user, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	input := services.ListNotificationsInput{
		UserID:     userID,
		Limit:      parseIntQuery(c, "limit", 0),
		Offset:     parseIntQuery(c, "offset", 0),
		UnreadOnly: parseBoolQuery(c, "unread"),
	}

	items, err := h.service.ListForUser(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	unread, err := h.service.CountUnread(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	limit, offset := input.Page()
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Count:  len(items),
		Unread: unread,
	})
}

// UnreadCount returns the number of unread notifications.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	count, err := h.service.CountUnread(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	var dto *services.NotificationDTO
	var err error
	if read {
		dto, err = h.service.MarkRead(requestContext(c), userID, id)
	} else {
		dto, err = h.service.MarkUnread(requestContext(c), userID, id)
	}

	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

type createNotificationRequest struct {
	UserID  string          `json:"user_id" validate:"required,uuid"`
	Type    string          `json:"type" validate:"required,max=64,notification_type"`
	Title   string          `json:"title" validate:"required,max=255"`
	Message string          `json:"message" validate:"required"`
	Data    json.RawMessage `json:"data" validate:"json_payload"`
}

// Create persists a notification on behalf of a backend collaborator and
// pushes it to the recipient's live connections.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload createNotificationRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Create(requestContext(c), services.CreateNotificationInput{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Title:   payload.Title,
		Message: payload.Message,
		Data:    payload.Data,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}
