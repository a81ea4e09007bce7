package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/memory"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

type stubService struct {
	answerErr   error
	lastSession string
	lastOffset  int
	lastLimit   int
	cleared     []string
	histories   map[string]schema.ChatHistoryRecord
	clearErr    error
}

func (s *stubService) Answer(ctx context.Context, question, sessionID string) (*orchestrator.Result, error) {
	if s.answerErr != nil {
		return nil, s.answerErr
	}
	s.lastSession = sessionID
	if sessionID == "" {
		sessionID = "generated"
	}
	return &orchestrator.Result{
		SessionID: sessionID,
		Answer:    "answer to " + question,
		SubQueries: []*schema.SubQueryRecord{
			{Text: question, Classification: schema.InScope, RelevantCount: 3},
		},
	}, nil
}

func (s *stubService) History(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error) {
	return s.histories[sessionID], nil
}

func (s *stubService) ListSessions(ctx context.Context, offset, limit int) ([]memory.SessionInfo, error) {
	s.lastOffset, s.lastLimit = offset, limit
	return []memory.SessionInfo{{ID: "a", Messages: 2}}, nil
}

func (s *stubService) ClearSession(ctx context.Context, sessionID string) error {
	s.cleared = append(s.cleared, sessionID)
	return s.clearErr
}

func do(t *testing.T, svc Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	New(svc).ServeHTTP(rec, req)
	return rec
}

func TestAnswerEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		svc         *stubService
		body        string
		wantStatus  int
		wantSession string
	}{
		{"new session", &stubService{}, `{"question":"What is X?"}`, http.StatusOK, "generated"},
		{"existing session", &stubService{}, `{"question":"What is X?","session_id":"s1"}`, http.StatusOK, "s1"},
		{"blank question", &stubService{}, `{"question":"   "}`, http.StatusBadRequest, ""},
		{"malformed body", &stubService{}, `{"question":`, http.StatusBadRequest, ""},
		{"pipeline failure", &stubService{answerErr: errors.New("boom")}, `{"question":"x"}`, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, tt.svc, http.MethodPost, "/v1/answer", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var out struct {
				SessionID  string `json:"session_id"`
				Answer     string `json:"answer"`
				SubQueries []struct {
					Classification string `json:"classification"`
					RelevantCount  int    `json:"relevant_count"`
				} `json:"sub_queries"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, tt.wantSession, out.SessionID)
			assert.Equal(t, "answer to What is X?", out.Answer)
			require.Len(t, out.SubQueries, 1)
			assert.Equal(t, "in-scope", out.SubQueries[0].Classification)
		})
	}
}

func TestSessionEndpoints(t *testing.T) {
	svc := &stubService{histories: map[string]schema.ChatHistoryRecord{
		"s1": {RecentMessages: []schema.ChatMessage{
			{Role: schema.RoleUser, Content: "hi", Timestamp: time.Unix(0, 0).UTC()},
		}},
	}}

	rec := do(t, svc, http.MethodGet, "/v1/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist schema.ChatHistoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.RecentMessages, 1)
	assert.Equal(t, "hi", hist.RecentMessages[0].Content)

	rec = do(t, svc, http.MethodGet, "/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, svc, http.MethodDelete, "/v1/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s1"}, svc.cleared)

	svc.clearErr = errors.New("redis down")
	rec = do(t, svc, http.MethodDelete, "/v1/sessions/s1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListSessionsEndpoint(t *testing.T) {
	svc := &stubService{}

	rec := do(t, svc, http.MethodGet, "/v1/sessions?offset=2&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.lastOffset)
	assert.Equal(t, 10, svc.lastLimit)
	assert.Contains(t, rec.Body.String(), `"session_id":"a"`)

	rec = do(t, svc, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, svc.lastLimit)

	rec = do(t, svc, http.MethodGet, "/v1/sessions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	rec := do(t, &stubService{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, &stubService{}, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, "127.0.0.1:0", &stubService{}) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
