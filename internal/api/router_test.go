package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rentwise/rentwise/internal/api"
	"github.com/rentwise/rentwise/internal/app"
	"github.com/rentwise/rentwise/internal/handlers/testutil"
	"github.com/rentwise/rentwise/internal/services"
)

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(api.Dependencies{})
	require.Error(t, err)

	_, err = api.NewRouter(api.Dependencies{Config: &app.Config{}})
	require.Error(t, err)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "database")

	for _, path := range []string{"/api/auth/me", "/api/notifications", "/api/notifications/unread-count"} {
		w = env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w = env.Request(http.MethodGet, "/api/notifications", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "rentwise_")

	w = env.Request(http.MethodGet, "/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestRouter_HealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
		cfg.Monitoring.Prometheus.Enabled = false
	})

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AuthFlow(t *testing.T) {
	env := testutil.NewEnv(t)

	registered := env.Register("tenant@example.com", "correct-horse")
	require.Equal(t, "Bearer", registered.TokenType)
	require.Equal(t, "tenant@example.com", registered.User.Email)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "tenant@example.com",
		"password": "correct-horse",
	}, "")
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "tenant@example.com",
		"password": "wrong-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	login := env.Login("tenant@example.com", "correct-horse")
	require.Equal(t, registered.User.ID, login.User.ID)

	w = env.Request(http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me testutil.UserPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, registered.User.ID, me.ID)
}

func TestRouter_InternalKey(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("owner@example.com", "correct-horse")

	body := map[string]any{
		"user_id": owner.User.ID,
		"type":    "booking.confirmed",
		"title":   "Booking confirmed",
		"message": "Your stay is confirmed",
	}

	w := env.Internal(http.MethodPost, "/internal/notifications", body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Internal(http.MethodPost, "/internal/notifications", body, "wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_INTERNAL_KEY", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Internal(http.MethodPost, "/internal/notifications", body, testutil.InternalKey)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.Internal(http.MethodGet, "/internal/realtime/summary", nil, testutil.InternalKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	disabled := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Notifications.InternalAPIKey = ""
	})
	w = disabled.Internal(http.MethodPost, "/internal/notifications", body, "anything")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NotificationLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	renter := env.Register("renter@example.com", "correct-horse")
	other := env.Register("other@example.com", "correct-horse")

	for _, title := range []string{"Payment received", "Booking confirmed"} {
		w := env.Internal(http.MethodPost, "/internal/notifications", map[string]any{
			"user_id": renter.User.ID,
			"type":    "payment",
			"title":   title,
			"message": title,
			"data":    map[string]any{"amount": 120},
		}, testutil.InternalKey)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.Request(http.MethodGet, "/api/notifications", nil, renter.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 2, resp.Meta.Count)
	require.EqualValues(t, 2, resp.Meta.Unread)

	var items []services.NotificationDTO
	testutil.DecodeInto(t, resp.Data, &items)
	require.Len(t, items, 2)
	require.JSONEq(t, `{"amount":120}`, string(items[0].Data))
	require.ElementsMatch(t, []string{"Payment received", "Booking confirmed"}, []string{items[0].Title, items[1].Title})

	target := items[0].ID

	w = env.Request(http.MethodPost, "/api/notifications/"+target+"/read", nil, other.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPost, "/api/notifications/"+target+"/read", nil, renter.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var unread struct {
		Unread int64 `json:"unread"`
	}
	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, renter.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &unread)
	require.EqualValues(t, 1, unread.Unread)

	w = env.Request(http.MethodPost, "/api/notifications/read-all", nil, renter.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/api/notifications?unread=true", nil, renter.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodDelete, "/api/notifications/"+target, nil, renter.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/api/notifications", nil, renter.AccessToken)
	require.Equal(t, 1, testutil.DecodeResponse(t, w).Meta.Count)
}

func TestRouter_CreateRejectsUnknownRecipient(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Internal(http.MethodPost, "/internal/notifications", map[string]any{
		"user_id": "3f2b8c1e-6a0d-4c55-9c57-0d5a1f3e9b21",
		"type":    "payment",
		"title":   "Payment received",
		"message": "Thanks",
	}, testutil.InternalKey)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.Equal(t, "RECIPIENT_NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Internal(http.MethodPost, "/internal/notifications", map[string]any{
		"user_id": "not-a-uuid",
		"type":    "payment",
		"title":   "Payment received",
		"message": "Thanks",
	}, testutil.InternalKey)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}
