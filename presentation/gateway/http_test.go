package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHandler_Health(t *testing.T) {
	f := newGatewayFixture(t)
	h := NewHandler(f.service, nil, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHandler_SessionFlow(t *testing.T) {
	f := newGatewayFixture(t)
	e := NewEcho(NewHandler(f.service, nil, nil))

	rec := doJSON(t, e, http.MethodPost, "/v1/sessions", `{"operator_id":"op-1","target_id":"viaverde_rpa"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started StartSessionOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.True(t, started.Started)
	assert.Equal(t, "https://portal.example.com/login", started.URL)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	base := "/v1/sessions/" + started.SessionID

	rec = doJSON(t, e, http.MethodPut, base+"/recording", `{"armed":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodPost, base+"/actions",
		`{"action_type":"click","parameters":{"x":100,"y":50,"preview_width":640,"preview_height":360}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var action ActionOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &action))
	require.NotNil(t, action.RecordedStep)
	assert.Equal(t, "Click at (200,100)", action.RecordedStep.Description)

	rec = doJSON(t, e, http.MethodPost, base+"/credentials", `{"field":"password"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = doJSON(t, e, http.MethodGet, base+"/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps StepsOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	assert.Len(t, steps.Steps, 2)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = doJSON(t, e, http.MethodPost, base+"/steps/save", `{"kind":"login"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"steps_saved_count":2}`, rec.Body.String())

	rec = doJSON(t, e, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list SessionsOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "op-1", list.Sessions[0].OperatorID)

	rec = doJSON(t, e, http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, e, http.MethodGet, base+"/steps", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decodeError(t, rec).Code)
}

func TestHandler_ErrorStatus(t *testing.T) {
	f := newGatewayFixture(t)
	e := NewEcho(NewHandler(f.service, nil, nil))
	id := f.start(t, "op-1")
	base := "/v1/sessions/" + id

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown session", http.MethodPost, "/v1/sessions/nope/actions", `{"action_type":"wait","parameters":{"seconds":0}}`, http.StatusNotFound, "session_not_found"},
		{"click without preview size", http.MethodPost, base + "/actions", `{"action_type":"click","parameters":{"x":1,"y":1}}`, http.StatusUnprocessableEntity, "invalid_action"},
		{"unsupported key", http.MethodPost, base + "/actions", `{"action_type":"key_press","parameters":{"key":"F13"}}`, http.StatusUnprocessableEntity, "invalid_action"},
		{"missing credential field", http.MethodPost, base + "/credentials", `{"field":"username"}`, http.StatusUnprocessableEntity, "credential_not_found"},
		{"save empty sequence", http.MethodPost, base + "/steps/save", `{"kind":"login"}`, http.StatusUnprocessableEntity, "invalid_action"},
		{"malformed body", http.MethodPost, base + "/actions", `{"action_type":`, http.StatusUnprocessableEntity, "invalid_action"},
		{"missing operator", http.MethodPost, "/v1/sessions", `{"target_id":"viaverde_rpa"}`, http.StatusUnprocessableEntity, "invalid_action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, e, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestHandler_HasDraft(t *testing.T) {
	f := newGatewayFixture(t)
	e := NewEcho(NewHandler(f.service, nil, nil))

	rec := doJSON(t, e, http.MethodGet, "/v1/drafts?operator_id=op-1&target_id=viaverde_rpa", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"has_draft":false,"draft_steps":0}`, rec.Body.String())

	rec = doJSON(t, e, http.MethodGet, "/v1/drafts?operator_id=op-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_Metrics(t *testing.T) {
	f := newGatewayFixture(t)
	e := NewEcho(NewHandler(f.service, nil, nil))
	f.start(t, "op-1")

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portalpilot_")
}
