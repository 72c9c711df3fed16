package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rentwise/rentwise/internal/api"
	"github.com/rentwise/rentwise/internal/app"
	iauth "github.com/rentwise/rentwise/internal/auth"
	sharedtestutil "github.com/rentwise/rentwise/internal/database/testutil"
	"github.com/rentwise/rentwise/internal/middleware"
	"github.com/rentwise/rentwise/internal/monitoring"
	"github.com/rentwise/rentwise/internal/monitoring/checks"
	"github.com/rentwise/rentwise/internal/realtime"
	"github.com/rentwise/rentwise/internal/services"
	"github.com/rentwise/rentwise/pkg/response"
)

// InternalKey is the shared secret accepted by the test router's /internal routes.
const InternalKey = "test-internal-key"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Hub           *realtime.Hub
	Notifications *services.NotificationService
	Config        *app.Config
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			CORS: app.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Realtime:      app.RealtimeConfig{Path: "/ws"},
		Notifications: app.NotificationConfig{InternalAPIKey: InternalKey},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.WithIdentityVerifier(jwtSvc))
	t.Cleanup(hub.Close)

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)

	health := monitoring.NewHealthManager()
	health.RegisterLiveness(checks.Realtime(hub))
	health.RegisterReadiness(checks.NotificationStore(db, time.Second))

	rateStore := middleware.NewMemoryRateStore()
	t.Cleanup(rateStore.Close)

	router, err := api.NewRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Users:         users,
		Notifications: notifications,
		Hub:           hub,
		Health:        health,
		RateStore:     rateStore,
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		JWT:           jwtSvc,
		Hub:           hub,
		Notifications: notifications,
		Config:        cfg,
	}
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// LoginResult bundles the JSON response from the register and login endpoints.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserPayload `json:"user"`
}

// Register creates an account through the public API and returns the issued token.
func (e *Env) Register(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())
	return e.decodeLogin(w)
}

// Login authenticates with email and password and returns the issued token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return e.decodeLogin(w)
}

func (e *Env) decodeLogin(w *httptest.ResponseRecorder) LoginResult {
	e.T.Helper()

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Greater(e.T, result.ExpiresIn, 0)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	headers := http.Header{}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	return e.do(method, path, body, headers)
}

// Internal executes a request against the service-to-service routes with the given key.
func (e *Env) Internal(method, path string, body any, key string) *httptest.ResponseRecorder {
	e.T.Helper()

	headers := http.Header{}
	if key != "" {
		headers.Set(middleware.InternalKeyHeader, key)
	}
	return e.do(method, path, body, headers)
}

func (e *Env) do(method, path string, body any, headers http.Header) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
