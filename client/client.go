// Package client is a reconnecting websocket client for the messaging API.
// Each owner constructs its own Client; there is no shared instance.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	ws "github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/websocket"
)

var (
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrUnauthorized     = errors.New("credential rejected by server")
	ErrNotConnected     = errors.New("not connected")
	ErrClosed           = errors.New("client closed")
)

const (
	writeWait = 10 * time.Second
	pongWait  = 75 * time.Second
)

// Event is one server -> client frame
type Event struct {
	Type      ws.EventType    `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Delivery is the payload of delivery, history and result events
type Delivery struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	Error        *string         `json:"error"`
	Code         string          `json:"code,omitempty"`
	ClientID     string          `json:"clientId,omitempty"`
	SectionID    string          `json:"sectionId,omitempty"`
	GradeLevelID string          `json:"gradeLevelId,omitempty"`
}

// Delivery decodes the payload of a delivery, history or result event
func (e Event) Delivery() (Delivery, error) {
	var d Delivery
	err := json.Unmarshal(e.Payload, &d)
	return d, err
}

// Message decodes the message of a successful receive_* event
func (d Delivery) Message() (*models.Message, error) {
	if !d.Success {
		return nil, fmt.Errorf("delivery failed: %s", d.Code)
	}
	var msg models.Message
	if err := json.Unmarshal(d.Data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Messages decodes the list of a successful *_history event
func (d Delivery) Messages() ([]models.Message, error) {
	if !d.Success {
		return nil, fmt.Errorf("history failed: %s", d.Code)
	}
	messages := []models.Message{}
	if err := json.Unmarshal(d.Data, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Client keeps one websocket open to the server, reconnecting per its Policy.
// Server events arrive on Events until Run returns.
type Client struct {
	url        string
	credential string
	policy     Policy
	dialer     *websocket.Dialer
	log        zerolog.Logger

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	mu      sync.Mutex // guards conn
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// New creates a client for serverURL (http(s) or ws(s); the path defaults to /api/v1/ws)
func New(serverURL, credential string, policy Policy, log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/api/v1/ws"
	}

	return &Client{
		url:        u.String(),
		credential: credential,
		policy:     policy.withDefaults(),
		dialer:     &websocket.Dialer{HandshakeTimeout: policy.withDefaults().DialTimeout},
		log:        log.With().Str("component", "chat_client").Logger(),
		events:     make(chan Event, 256),
		closed:     make(chan struct{}),
	}, nil
}

// Events yields server events. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current connection state
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if from != to {
		if !validTransition(from, to) {
			c.log.Warn().Stringer("from", from).Stringer("to", to).Msg("unexpected state transition")
		}
		c.log.Debug().Stringer("from", from).Stringer("to", to).Msg("state changed")
	}
}

// Run connects and keeps the client connected until ctx ends, Close is
// called, the credential is rejected, or a reconnect exhausts the policy.
// It returns nil after Close, otherwise the reason it stopped. Run is called
// once per Client; retrying after a terminal failure takes a new Client.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	defer c.setState(StateDisconnected)

	c.setState(StateConnecting)
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if c.isClosed() {
				return nil
			}
			return err
		}

		c.setConn(conn)
		c.setState(StateConnected)
		c.readLoop(ctx, conn)
		c.setConn(nil)

		if c.isClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.setState(StateReconnecting)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.credential)

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.policy.Backoff(attempt - 1)
			c.log.Debug().Int("attempt", attempt).Dur("backoff", wait).Msg("retrying connection")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.closed:
				return nil, ErrClosed
			}
		}

		dialCtx, cancel := context.WithTimeout(ctx, c.policy.DialTimeout)
		conn, resp, err := c.dialer.DialContext(dialCtx, c.url, header)
		cancel()
		if err == nil {
			return conn, nil
		}
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.log.Debug().Err(err).Int("attempt", attempt).Msg("connection attempt failed")
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// readLoop forwards frames until the socket fails
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !c.isClosed() {
				c.log.Debug().Err(err).Msg("connection lost")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case c.events <- ev:
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close disconnects for good; Run returns nil
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			c.writeMu.Unlock()
			conn.Close()
		}
	})
	return nil
}

// Send writes one client -> server event on the current connection
func (c *Client) Send(eventType ws.EventType, payload interface{}) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ws.IncomingMessage{Type: eventType, Payload: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	return nil
}

// SendDirect sends a direct message and returns its idempotency token.
// Resending with the same token after a timeout cannot create a duplicate.
func (c *Client) SendDirect(receiverID, content string, attachments ...string) (string, error) {
	clientID := uuid.NewString()
	return clientID, c.Send(ws.EventSendDirect, ws.SendPayload{ReceiverID: receiverID, Content: content, Attachments: attachments, ClientID: clientID})
}

// SendSection sends a message to a section and returns its idempotency token
func (c *Client) SendSection(sectionID, content string, attachments ...string) (string, error) {
	clientID := uuid.NewString()
	return clientID, c.Send(ws.EventSendSection, ws.SendPayload{SectionID: sectionID, Content: content, Attachments: attachments, ClientID: clientID})
}

// SendGradeLevel sends a message to a grade level and returns its idempotency token
func (c *Client) SendGradeLevel(gradeLevelID, content string, attachments ...string) (string, error) {
	clientID := uuid.NewString()
	return clientID, c.Send(ws.EventSendGradeLevel, ws.SendPayload{GradeLevelID: gradeLevelID, Content: content, Attachments: attachments, ClientID: clientID})
}

// Resend retries a send with its original token
func (c *Client) Resend(eventType ws.EventType, payload ws.SendPayload) error {
	if payload.ClientID == "" {
		return errors.New("resend needs the original client id")
	}
	return c.Send(eventType, payload)
}

func (c *Client) FetchDirectHistory(userA, userB string) error {
	return c.Send(ws.EventFetchDirectHistory, ws.HistoryPayload{UserA: userA, UserB: userB})
}

func (c *Client) FetchSectionHistory(sectionID string) error {
	return c.Send(ws.EventFetchSectionHistory, ws.HistoryPayload{SectionID: sectionID})
}

func (c *Client) FetchGradeLevelHistory(gradeLevelID string) error {
	return c.Send(ws.EventFetchGradeLevelHistory, ws.HistoryPayload{GradeLevelID: gradeLevelID})
}

// MarkSeen marks the referenced conversation as seen
func (c *Client) MarkSeen(ref ws.ScopeRef) error {
	return c.Send(ws.EventMarkSeen, ws.SeenPayload{ScopeRef: ref})
}

// Delete removes one of the caller's own messages
func (c *Client) Delete(ref ws.ScopeRef, messageID string) error {
	return c.Send(ws.EventDeleteMessage, ws.DeletePayload{MessageID: messageID, ScopeRef: ref})
}
