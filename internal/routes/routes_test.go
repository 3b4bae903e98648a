package routes

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/client"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/chat"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/handlers"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/store"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/utils"
	ws "github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/websocket"
)

type testServer struct {
	app    *fiber.App
	hub    *ws.Hub
	tokens *utils.TokenManager
	url    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()

	graph, err := relations.LoadStaticGraph("../relations/testdata/school.json")
	require.NoError(t, err)
	st, err := store.OpenBadger("", log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens := utils.NewTokenManager("test-secret", time.Hour)
	resolver := relations.NewResolver(graph, log)
	hub := ws.NewHub(log)
	manager := ws.NewManager(tokens, resolver, hub, 64, log)
	dispatcher := chat.NewDispatcher(st, hub, nil, time.Second, log)
	history := chat.NewHistory(st, log)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	SetupRoutes(app, handlers.New(manager, resolver, dispatcher, history, st, log), tokens)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.ShutdownWithTimeout(time.Second) })

	return &testServer{app: app, hub: hub, tokens: tokens, url: "http://" + ln.Addr().String()}
}

func (s *testServer) token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := s.tokens.Generate(userID, role)
	require.NoError(t, err)
	return tok
}

// connect starts a client for userID and waits until the hub serves it
func (s *testServer) connect(t *testing.T, userID string, role models.Role) *client.Client {
	t.Helper()
	c, err := client.New(s.url, s.token(t, userID, role), client.Policy{MaxAttempts: 1}, zerolog.Nop())
	require.NoError(t, err)
	go c.Run(context.Background())
	t.Cleanup(func() { c.Close() })

	require.Eventually(t, func() bool { return s.hub.IsUserOnline(userID) }, 2*time.Second, 10*time.Millisecond)
	return c
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, 2000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func waitFor(t *testing.T, c *client.Client, eventType ws.EventType) client.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "client stopped before %s", eventType)
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", eventType)
		}
	}
}

func TestDirectMessageReachesOnlineReceiver(t *testing.T) {
	srv := newTestServer(t)
	parent := srv.connect(t, "p1", models.RoleParent)
	teacher := srv.connect(t, "t1", models.RoleTeacher)

	clientID, err := teacher.SendDirect("p1", "Hello")
	require.NoError(t, err)

	delivery, err := waitFor(t, parent, ws.EventReceiveDirect).Delivery()
	require.NoError(t, err)
	assert.Equal(t, clientID, delivery.ClientID)
	msg, err := delivery.Message()
	require.NoError(t, err)
	assert.Equal(t, "t1", msg.SenderID)
	assert.Equal(t, "p1", msg.ReceiverID)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, int64(1), msg.Seq)

	require.NoError(t, parent.FetchDirectHistory("t1", "p1"))
	delivery, err = waitFor(t, parent, ws.EventDirectHistory).Delivery()
	require.NoError(t, err)
	messages, err := delivery.Messages()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, msg.ID, messages[0].ID)
}

func TestSectionMessageOverREST(t *testing.T) {
	srv := newTestServer(t)
	student := srv.connect(t, "st1", models.RoleStudent)
	teacher := srv.token(t, "t1", models.RoleTeacher)

	status, body := srv.do(t, http.MethodPost, "/api/v1/messages/", teacher,
		`{"scopeType":"SECTION","scopeId":"7A","content":"Homework is due Friday","clientId":"c-1"}`)
	require.Equal(t, http.StatusCreated, status, body)

	delivery, err := waitFor(t, student, ws.EventReceiveSection).Delivery()
	require.NoError(t, err)
	assert.Equal(t, "7A", delivery.SectionID)

	// A retried request is acknowledged without a second message
	status, _ = srv.do(t, http.MethodPost, "/api/v1/messages/", teacher,
		`{"scopeType":"SECTION","scopeId":"7A","content":"Homework is due Friday","clientId":"c-1"}`)
	require.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodGet, "/api/v1/messages/sections/7A", srv.token(t, "st1", models.RoleStudent), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "7A", body["sectionId"])
	assert.Len(t, body["data"], 1)
}

func TestMessageRoutesRefuseCallers(t *testing.T) {
	srv := newTestServer(t)
	teacher := srv.token(t, "t1", models.RoleTeacher)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
		code   string
	}{
		{
			name:   "missing credential",
			method: http.MethodGet,
			path:   "/api/v1/messages/direct/p1",
			status: http.StatusUnauthorized,
		},
		{
			name:   "section outside the teacher's classes",
			method: http.MethodGet,
			path:   "/api/v1/messages/sections/7B",
			token:  teacher,
			status: http.StatusForbidden,
			code:   chat.CodeUnauthorizedScope,
		},
		{
			name:   "direct with an unrelated parent",
			method: http.MethodPost,
			path:   "/api/v1/messages/",
			token:  teacher,
			body:   `{"scopeType":"DIRECT","receiverId":"p2","content":"hi"}`,
			status: http.StatusForbidden,
			code:   chat.CodeUnauthorizedScope,
		},
		{
			name:   "empty content",
			method: http.MethodPost,
			path:   "/api/v1/messages/",
			token:  teacher,
			body:   `{"scopeType":"SECTION","scopeId":"7A","content":"  "}`,
			status: http.StatusBadRequest,
			code:   chat.CodeEmptyMessage,
		},
		{
			name:   "unknown scope type",
			method: http.MethodPost,
			path:   "/api/v1/messages/",
			token:  teacher,
			body:   `{"scopeType":"SCHOOL","scopeId":"s1","content":"hi"}`,
			status: http.StatusBadRequest,
			code:   chat.CodeMalformedScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, false, body["success"])
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	srv := newTestServer(t)
	c, err := client.New(srv.url, "not-a-token", client.Policy{MaxAttempts: 1}, zerolog.Nop())
	require.NoError(t, err)

	require.ErrorIs(t, c.Run(context.Background()), client.ErrUnauthorized)
	assert.Zero(t, srv.hub.Stats().Connections)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, body := srv.do(t, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
