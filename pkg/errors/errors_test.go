package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := ErrRecipientNotFound.WithInternal(stdErrors.New("FOREIGN KEY constraint failed"))
	require.Equal(t, "Recipient not found: FOREIGN KEY constraint failed", err.Error())
	require.Nil(t, ErrRecipientNotFound.Internal)
}

func TestCopiesMatchTheirSentinel(t *testing.T) {
	invalid := InvalidNotification("title is required")
	require.Equal(t, "title is required", invalid.Message)
	require.Equal(t, http.StatusBadRequest, invalid.StatusCode)
	require.ErrorIs(t, invalid, ErrInvalidNotification)
	require.NotErrorIs(t, invalid, ErrBadRequest)

	wrapped := fmt.Errorf("create: %w", ErrNotificationNotFound.WithInternal(stdErrors.New("record not found")))
	require.ErrorIs(t, wrapped, ErrNotificationNotFound)
	require.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))
	require.Same(t, ErrInvalidInternalKey, FromError(ErrInvalidInternalKey))

	wrapped := fmt.Errorf("persist: %w", ErrRecipientNotFound)
	require.Same(t, ErrRecipientNotFound, FromError(wrapped))

	raw := stdErrors.New("connection reset")
	out := FromError(raw)
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.ErrorIs(t, out, raw)
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid JSON payload")
	require.Equal(t, "BAD_REQUEST", err.Code)
	require.Equal(t, "invalid JSON payload", err.Message)
	require.Equal(t, "Invalid request", ErrBadRequest.Message)
}

func TestNotificationStatuses(t *testing.T) {
	require.Equal(t, http.StatusNotFound, ErrNotificationNotFound.StatusCode)
	require.Equal(t, http.StatusNotFound, ErrRecipientNotFound.StatusCode)
	require.Equal(t, http.StatusUnauthorized, ErrInvalidInternalKey.StatusCode)
	require.Equal(t, http.StatusServiceUnavailable, ErrRealtimeUnavailable.StatusCode)
}

func TestNilAppError(t *testing.T) {
	var err *AppError
	require.Equal(t, "<nil>", err.Error())
	require.Nil(t, err.WithMessage("x"))
	require.Nil(t, err.WithInternal(stdErrors.New("x")))
	require.NoError(t, err.Unwrap())
}
