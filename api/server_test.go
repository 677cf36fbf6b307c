package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mealchat/candidate"
	"mealchat/completion"
	"mealchat/completion/mock"
	"mealchat/conversation"
	"mealchat/session"
	"mealchat/store"
	"mealchat/triage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func newTestServer(svc completion.Service) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(session.NewManager(session.Config{
		Conversation: conversation.NewEngine(svc, nil),
		Generator:    candidate.NewGenerator(svc, 3),
		Store:        store.NewMemory(),
		Meter:        noop.NewMeterProvider().Meter("test"),
	}))
}

func do(t *testing.T, s *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_RequiresIdentity(t *testing.T) {
	s := newTestServer(mock.NewLLMClient())

	w := do(t, s, http.MethodPost, "/api/promptUser", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Flow(t *testing.T) {
	s := newTestServer(mock.NewLLMClient())

	w := do(t, s, http.MethodGet, "/api/conversation", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	conv := decode[struct {
		Transcript     conversation.Transcript `json:"transcript"`
		QuickResponses []string                `json:"quickResponses"`
	}](t, w)
	require.Len(t, conv.Transcript, 1)
	assert.NotEmpty(t, conv.QuickResponses)

	w = do(t, s, http.MethodPost, "/api/generateMealPlan", "alice", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = do(t, s, http.MethodPost, "/api/promptUser", "alice", map[string]string{"message": "Thai food, I'm vegan"})
	require.Equal(t, http.StatusOK, w.Code)
	prompt := decode[promptResponse](t, w)
	assert.True(t, prompt.Ready)
	assert.Equal(t, "vegan", prompt.Preferences.DietaryRestriction.String())

	w = do(t, s, http.MethodPost, "/api/generateMealPlan", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/api/triage/accept", "/api/triage/reject", "/api/triage/accept"} {
		w = do(t, s, http.MethodPost, path, "alice", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
	}
	v := decode[triage.View](t, w)
	assert.Equal(t, triage.StateComplete, v.State)
	assert.Len(t, v.Accepted, 2)

	w = do(t, s, http.MethodPost, "/api/triage/accept", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPost, "/api/plans", "alice", map[string]string{"name": "Thai week", "startDate": "2025-03-03"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[session.PlanView](t, w)
	assert.Equal(t, "2025-03-09", created.Plan.EndDate)

	w = do(t, s, http.MethodPost, fmt.Sprintf("/api/plans/%s/days/monday/meals", created.Plan.ID), "alice", map[string]bool{"accepted": true})
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[session.PlanView](t, w)
	assert.Equal(t, 800.0, view.Plan.Days[0].Totals.Calories)
	assert.Equal(t, 800.0, view.Totals.Calories)

	w = do(t, s, http.MethodPut, fmt.Sprintf("/api/plans/%s/days/Monday/meals", created.Plan.ID), "alice", map[string]any{"meals": view.Plan.Days[0].Meals[:1]})
	require.Equal(t, http.StatusOK, w.Code)
	view = decode[session.PlanView](t, w)
	assert.Equal(t, 300.0, view.Plan.Days[0].Totals.Calories)

	w = do(t, s, http.MethodGet, fmt.Sprintf("/api/plans/%s/days/monday/progress", created.Plan.ID), "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"percent":15`)

	w = do(t, s, http.MethodGet, "/api/plans", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(t, s, http.MethodGet, "/api/plans/"+created.Plan.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, fmt.Sprintf("/api/plans/%s/days/someday/meals", created.Plan.ID), "alice", map[string]any{"meals": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_CompletionFailures(t *testing.T) {
	tests := []struct {
		name       string
		steps      []mock.Step
		path       string
		wantStatus int
	}{
		{
			name:       "extraction unavailable",
			steps:      []mock.Step{{Err: fmt.Errorf("%w: throttled", completion.ErrServiceUnavailable)}},
			path:       "/api/promptUser",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "extraction malformed",
			steps:      []mock.Step{{Content: "not json"}},
			path:       "/api/promptUser",
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "empty batch",
			steps: []mock.Step{
				{Content: `{"cuisine":"Thai","nutritionalGoal":"unknown","dietaryRestriction":"unknown","foodPreference":"unknown","followUpPrompt":"ok"}`},
				{Content: `{"meals":[]}`},
			},
			path:       "/api/generateMealPlan",
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(mock.NewScripted(tt.steps...))
			w := do(t, s, http.MethodPost, "/api/promptUser", "alice", map[string]string{"message": "Thai"})
			if tt.path == "/api/promptUser" {
				assert.Equal(t, tt.wantStatus, w.Code)
				resp := decode[promptResponse](t, w)
				assert.Equal(t, conversation.RetryMessage, resp.Reply.Content)
				assert.NotEmpty(t, resp.Error)
				return
			}
			require.Equal(t, http.StatusOK, w.Code)

			w = do(t, s, http.MethodPost, tt.path, "alice", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), session.GenerateFailedMessage)
		})
	}
}
