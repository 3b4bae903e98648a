package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/chat"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

// Socket is the part of a websocket connection the pumps use
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client pumps frames between one socket and its Connection
type Client struct {
	conn       *Connection
	socket     Socket
	manager    *Manager
	dispatcher *chat.Dispatcher
	history    *chat.History
	log        zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(conn *Connection, socket Socket, manager *Manager, dispatcher *chat.Dispatcher, history *chat.History, log zerolog.Logger) *Client {
	return &Client{
		conn:       conn,
		socket:     socket,
		manager:    manager,
		dispatcher: dispatcher,
		history:    history,
		log: log.With().
			Str("conn_id", conn.ID).
			Str("user_id", conn.UserID).
			Logger(),
	}
}

// Serve runs both pumps and returns once the socket is finished with
func (c *Client) Serve() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(ctx)
	<-writerDone
}

// readPump handles incoming messages from the client
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.manager.Disconnect(c.conn)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.conn.Closed() {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.sendError("BAD_FRAME", "frame is not a valid event")
			continue
		}

		c.handleIncomingMessage(ctx, incoming)

		if c.conn.Closed() {
			return
		}
	}
}

// writePump handles outgoing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message := <-c.conn.Outbound():
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("websocket write error")
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}

		case <-c.conn.Done():
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleIncomingMessage processes different types of incoming messages
func (c *Client) handleIncomingMessage(ctx context.Context, msg IncomingMessage) {
	switch msg.Type {
	case EventSendDirect, EventSendSection, EventSendGradeLevel:
		c.handleSend(ctx, msg)
	case EventFetchDirectHistory, EventFetchSectionHistory, EventFetchGradeLevelHistory:
		c.handleHistory(ctx, msg)
	case EventMarkSeen:
		c.handleMarkSeen(ctx, msg.Payload)
	case EventDeleteMessage:
		c.handleDelete(ctx, msg.Payload)
	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+string(msg.Type))
	}
}

func (c *Client) handleSend(ctx context.Context, msg IncomingMessage) {
	var payload SendPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.replyFailure(ReceiveEvent(sendScopeType(msg.Type)), fmtInvalid(err), "")
		return
	}

	scope := models.Direct(c.conn.UserID, payload.ReceiverID)
	switch msg.Type {
	case EventSendSection:
		scope = models.Section(payload.SectionID)
	case EventSendGradeLevel:
		scope = models.GradeLevel(payload.GradeLevelID)
	}
	reply := ReceiveEvent(scope.Type)

	if payload.SenderID != "" && payload.SenderID != c.conn.UserID {
		c.replyFailure(reply, chat.ErrUnauthorizedScope, payload.ClientID)
		return
	}

	res, err := c.dispatcher.Send(ctx, c.conn.Membership, chat.SendRequest{
		Scope:       scope,
		Content:     payload.Content,
		Attachments: payload.Attachments,
		ClientID:    payload.ClientID,
	})
	if err != nil {
		c.replyFailure(reply, err, payload.ClientID)
		return
	}

	// Fresh messages reach this connection through the room broadcast
	if res.Duplicate {
		resp := Ok(res.Message)
		resp.ClientID = res.Message.ClientID
		resp.SectionID, resp.GradeLevelID = groupIDs(scope)
		c.conn.SendEvent(reply, resp)
	}
}

func (c *Client) handleHistory(ctx context.Context, msg IncomingMessage) {
	var payload HistoryPayload
	reply := EventDirectHistory
	switch msg.Type {
	case EventFetchSectionHistory:
		reply = EventSectionHistory
	case EventFetchGradeLevelHistory:
		reply = EventGradeLevelHistory
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.replyFailure(reply, fmtInvalid(err), "")
		return
	}

	var scope models.Scope
	switch msg.Type {
	case EventFetchSectionHistory:
		scope = models.Section(payload.SectionID)
	case EventFetchGradeLevelHistory:
		scope = models.GradeLevel(payload.GradeLevelID)
	default:
		a, b := payload.UserA, payload.UserB
		if a == "" {
			a = c.conn.UserID
		}
		if b == "" {
			b = c.conn.UserID
		}
		scope = models.Direct(a, b)
	}

	messages, err := c.history.Fetch(ctx, c.conn.Membership, scope)
	var resp Response
	if err != nil {
		resp = Fail(chat.PublicError(err), chat.Code(err))
	} else {
		resp = Ok(messages)
	}
	resp.SectionID, resp.GradeLevelID = groupIDs(scope)
	c.conn.SendEvent(reply, resp)
}

func (c *Client) handleMarkSeen(ctx context.Context, raw json.RawMessage) {
	var payload SeenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.replyFailure(EventSeenResult, fmtInvalid(err), "")
		return
	}
	if payload.ReaderID != "" && payload.ReaderID != c.conn.UserID {
		c.replyFailure(EventSeenResult, chat.ErrUnauthorizedScope, "")
		return
	}
	scope, err := payload.Scope(c.conn.UserID)
	if err != nil {
		c.replyFailure(EventSeenResult, err, "")
		return
	}

	count, err := c.dispatcher.MarkSeen(ctx, c.conn.Membership, scope)
	if err != nil {
		c.replyFailure(EventSeenResult, err, "")
		return
	}
	c.conn.SendEvent(EventSeenResult, Ok(SeenResult{ScopeKey: scope.Key(), Count: count}))
}

func (c *Client) handleDelete(ctx context.Context, raw json.RawMessage) {
	var payload DeletePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.replyFailure(EventDeleteResult, fmtInvalid(err), "")
		return
	}
	scope, err := payload.Scope(c.conn.UserID)
	if err != nil {
		c.replyFailure(EventDeleteResult, err, "")
		return
	}

	deleted, err := c.dispatcher.Delete(ctx, c.conn.Membership, scope, payload.MessageID)
	if err != nil {
		c.replyFailure(EventDeleteResult, err, "")
		return
	}
	c.conn.SendEvent(EventDeleteResult, Ok(DeleteResult{ScopeKey: scope.Key(), MessageID: payload.MessageID, Deleted: deleted}))
}

// replyFailure echoes a failure to this connection only
func (c *Client) replyFailure(eventType EventType, err error, clientID string) {
	resp := Fail(chat.PublicError(err), chat.Code(err))
	resp.ClientID = clientID
	if sendErr := c.conn.SendEvent(eventType, resp); sendErr != nil {
		c.log.Debug().Err(sendErr).Str("event", string(eventType)).Msg("failed to queue reply")
	}
}

func (c *Client) sendError(code, message string) {
	c.conn.SendEvent(EventError, ErrorPayload{Code: code, Message: message})
}

func sendScopeType(eventType EventType) models.ScopeType {
	switch eventType {
	case EventSendSection:
		return models.ScopeSection
	case EventSendGradeLevel:
		return models.ScopeGradeLevel
	}
	return models.ScopeDirect
}

func groupIDs(scope models.Scope) (sectionID, gradeLevelID string) {
	switch scope.Type {
	case models.ScopeSection:
		return scope.ID, ""
	case models.ScopeGradeLevel:
		return "", scope.ID
	}
	return "", ""
}

func fmtInvalid(err error) error {
	return fmt.Errorf("%w: %v", chat.ErrInvalidMessage, err)
}
