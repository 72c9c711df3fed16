// Package errors defines the coded errors rendered in the API envelope's
// error.code and error.message fields.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable code and the HTTP status it maps to.
// Two AppErrors match under errors.Is when their codes are equal, so a copy
// with a custom message still matches its sentinel.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal cause.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches on Code.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy carrying err as its cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy with a caller-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = message
	return &cpy
}

// Request and transport errors.
var (
	ErrBadRequest         = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized       = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	ErrNotFound           = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrRateLimit          = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrInternalServer     = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrServiceUnavailable = New("SERVICE_UNAVAILABLE", "Service temporarily unavailable", http.StatusServiceUnavailable)
)

// Notification store and delivery errors.
var (
	// ErrNotificationNotFound covers both missing rows and rows owned by
	// another user, so ownership is never disclosed.
	ErrNotificationNotFound = New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)
	// ErrRecipientNotFound rejects a notification addressed to an unknown user.
	ErrRecipientNotFound = New("RECIPIENT_NOT_FOUND", "Recipient not found", http.StatusNotFound)
	// ErrInvalidNotification rejects a malformed notification; the message names the field.
	ErrInvalidNotification = New("INVALID_NOTIFICATION", "Invalid notification", http.StatusBadRequest)
	// ErrInvalidInternalKey rejects a persist call without the shared service key.
	ErrInvalidInternalKey = New("INVALID_INTERNAL_KEY", "Internal API key required", http.StatusUnauthorized)
	// ErrRealtimeUnavailable is returned when the live hub has been shut down.
	ErrRealtimeUnavailable = New("REALTIME_UNAVAILABLE", "Live notifications are unavailable", http.StatusServiceUnavailable)
)

// New builds an AppError.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// NewBadRequest is ErrBadRequest with a specific message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// InvalidNotification is ErrInvalidNotification with a specific message.
func InvalidNotification(message string) *AppError {
	return ErrInvalidNotification.WithMessage(message)
}

// FromError returns the AppError in err's chain, or ErrInternalServer wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}
