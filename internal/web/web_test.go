package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farewatch/farewatch/internal/auth"
	"github.com/farewatch/farewatch/internal/chat"
	"github.com/farewatch/farewatch/internal/conversations"
	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/internal/ratelimit"
	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/pkg/models"
)

type fakeStreamer struct {
	chunks   []models.ChatChunk
	lastReq  *chat.Request
	lastAns  *chat.ElicitationAnswer
	requests int
}

func (f *fakeStreamer) emit() <-chan models.ChatChunk {
	ch := make(chan models.ChatChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func (f *fakeStreamer) Stream(ctx context.Context, req *chat.Request) <-chan models.ChatChunk {
	f.lastReq = req
	f.requests++
	return f.emit()
}

func (f *fakeStreamer) SubmitElicitation(ctx context.Context, ans *chat.ElicitationAnswer) <-chan models.ChatChunk {
	f.lastAns = ans
	return f.emit()
}

type testServer struct {
	handler  http.Handler
	streamer *fakeStreamer
	convs    conversations.Store
	jwt      *auth.JWTService
}

func newTestServer(t *testing.T, limiterConfig ratelimit.Config) *testServer {
	t.Helper()
	streamer := &fakeStreamer{chunks: []models.ChatChunk{
		{Type: models.ChunkContent, Content: "Hello!", ThreadID: "thread-1"},
		{Type: models.ChunkDone, ThreadID: "thread-1"},
	}}
	convs := conversations.NewMemoryStore(tokens.NewEstimator(), 8000)
	jwtService := auth.NewJWTService("test-secret", time.Hour)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	h := NewHandler(streamer, convs, jwtService, ratelimit.NewLimiter(limiterConfig), metrics, nil)
	return &testServer{handler: h.Mux(), streamer: streamer, convs: convs, jwt: jwtService}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.jwt.Generate(&models.User{ID: userID, Name: "Ada"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Enabled: false})

	if rec := s.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Enabled: false})

	rec := s.do(t, http.MethodPost, "/api/chat", "", `{"message":"hi"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if s.streamer.requests != 0 {
		t.Fatal("unauthenticated request reached the orchestrator")
	}
}

func TestChatStreamsSSE(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Enabled: false})

	rec := s.do(t, http.MethodPost, "/api/chat", s.token(t, "user-1"),
		`{"message":"hello","thread_id":"thread-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	for header, want := range map[string]string{
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	events := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2:\n%s", len(events), rec.Body.String())
	}
	var first models.ChatChunk
	if err := json.Unmarshal([]byte(strings.TrimPrefix(events[0], "data: ")), &first); err != nil {
		t.Fatalf("bad sse payload: %v", err)
	}
	if first.Type != models.ChunkContent || first.Content != "Hello!" {
		t.Fatalf("first event = %+v", first)
	}

	if s.streamer.lastReq.UserID != "user-1" || s.streamer.lastReq.Utterance != "hello" || s.streamer.lastReq.ThreadID != "thread-1" {
		t.Fatalf("orchestrator request = %+v", s.streamer.lastReq)
	}
}

func TestChatRateLimited(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstSize: 1, Enabled: true})
	token := s.token(t, "user-1")

	if rec := s.do(t, http.MethodPost, "/api/chat", token, `{"message":"hi"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/chat", token, `{"message":"hi again"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
	if s.streamer.requests != 1 {
		t.Fatalf("orchestrator calls = %d, want 1", s.streamer.requests)
	}
}

func TestChatBadBody(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Enabled: false})

	rec := s.do(t, http.MethodPost, "/api/chat", s.token(t, "user-1"), "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestElicitationEndpoint(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Enabled: false})
	token := s.token(t, "user-1")

	// Missing required fields.
	rec := s.do(t, http.MethodPost, "/api/chat/elicitation", token, `{"thread_id":"t1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete body status = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/chat/elicitation", token,
		`{"thread_id":"t1","tool_call_id":"call_1","tool_name":"create_trip","args":{"name":"Hawaii"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	ans := s.streamer.lastAns
	if ans == nil || ans.UserID != "user-1" || ans.ToolCallID != "call_1" || ans.Args["name"] != "Hawaii" {
		t.Fatalf("answer = %+v", ans)
	}
}

func TestConversationCRUD(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Enabled: false})
	ctx := context.Background()
	token := s.token(t, "user-1")

	conv, err := s.convs.Create(ctx, "user-1", "Hawaii planning")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.convs.Append(ctx, conv.ID, &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// List.
	rec := s.do(t, http.MethodGet, "/api/conversations", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listBody struct {
		Conversations []*models.Conversation `json:"conversations"`
		Count         int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("list decode: %v", err)
	}
	if listBody.Count != 1 || listBody.Conversations[0].Title != "Hawaii planning" {
		t.Fatalf("list = %+v", listBody)
	}

	// Detail.
	rec = s.do(t, http.MethodGet, "/api/conversations/"+conv.ID, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var detail struct {
		Messages []*models.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("detail decode: %v", err)
	}
	if len(detail.Messages) != 1 || detail.Messages[0].Content != "hi" {
		t.Fatalf("detail = %+v", detail)
	}

	// Another user sees a 404, not a 403.
	rec = s.do(t, http.MethodGet, "/api/conversations/"+conv.ID, s.token(t, "intruder"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user get status = %d, want 404", rec.Code)
	}

	// Delete.
	rec = s.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d, want 404", rec.Code)
	}
}
