package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/rentwise/rentwise/internal/middleware"
	"github.com/rentwise/rentwise/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext() context.Context {
	return context.Background()
}

// newTestContext builds a gin context for direct handler invocation.
func newTestContext(method, target string, body any, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}

	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		c.Set(middleware.CtxUserIDKey, userID)
	}
	return c, recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder, dest any) response.Response {
	t.Helper()

	var payload response.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	if dest != nil && payload.Data != nil {
		raw, err := json.Marshal(payload.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dest))
	}
	return payload
}

type recordingEmitter struct {
	events []string
	users  []string
}

func (r *recordingEmitter) EmitToUser(userID, event string, _ any) {
	r.users = append(r.users, userID)
	r.events = append(r.events, event)
}
