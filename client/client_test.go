package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	ws "github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/websocket"
)

var fastPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     40 * time.Millisecond,
	DialTimeout:    time.Second,
}

// echoServer upgrades authorized requests, greets with one event and echoes
// each client event back. dropFirst closes the first connection right after
// the greeting.
func echoServer(t *testing.T, dropFirst bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var accepted atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := accepted.Add(1)

		conn.WriteJSON(ws.WSMessage{Type: ws.EventSeenResult, Payload: ws.Ok(nil), Timestamp: time.Now()})
		if dropFirst && n == 1 {
			return
		}
		for {
			var in ws.IncomingMessage
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			conn.WriteJSON(ws.WSMessage{Type: in.Type, Payload: in.Payload, Timestamp: time.Now()})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &accepted
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestClient_ConnectSendAndClose(t *testing.T) {
	srv, _ := echoServer(t, false)
	c, err := New(srv.URL, "good", fastPolicy, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, StateDisconnected, c.State())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Equal(t, ws.EventSeenResult, nextEvent(t, c).Type)
	require.Equal(t, StateConnected, c.State())

	clientID, err := c.SendSection("7A", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, clientID)

	ev := nextEvent(t, c)
	require.Equal(t, ws.EventSendSection, ev.Type)
	var payload ws.SendPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	require.Equal(t, clientID, payload.ClientID)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
	require.Equal(t, StateDisconnected, c.State())
	require.ErrorIs(t, c.Send(ws.EventMarkSeen, ws.SeenPayload{}), ErrClosed)
}

func TestClient_ReconnectsAfterTransportLoss(t *testing.T) {
	srv, accepted := echoServer(t, true)
	c, err := New(srv.URL, "good", fastPolicy, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	nextEvent(t, c)
	nextEvent(t, c)
	require.Equal(t, int32(2), accepted.Load())
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClient_GivesUpAfterPolicy(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, "good", fastPolicy, zerolog.Nop())
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, StateDisconnected, c.State())

	_, open := <-c.Events()
	require.False(t, open)
}

func TestClient_RejectedCredentialIsTerminal(t *testing.T) {
	srv, accepted := echoServer(t, false)
	c, err := New(srv.URL, "bad", fastPolicy, zerolog.Nop())
	require.NoError(t, err)

	require.ErrorIs(t, c.Run(context.Background()), ErrUnauthorized)
	require.Zero(t, accepted.Load())
}

func TestNew_NormalizesURL(t *testing.T) {
	c, err := New("https://school.example.com", "t", Policy{}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "wss://school.example.com/api/v1/ws", c.url)
}
