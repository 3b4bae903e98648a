package websocket

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/metrics"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// room is the live membership of one scope. A closed room has been removed
// from the hub and must not gain members.
type room struct {
	mu      sync.RWMutex
	members map[*Connection]struct{}
	closed  bool
}

// Hub is the room registry: scope key -> connected members. Each room has
// its own lock so traffic in one scope does not contend with another.
type Hub struct {
	mu    sync.RWMutex
	rooms map[models.ScopeKey]*room
	conns map[string]*Connection
	log   zerolog.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[models.ScopeKey]*room),
		conns: make(map[string]*Connection),
		log:   log.With().Str("component", "hub").Logger(),
	}
}

// Register tracks a connection for stats. Closed connections are ignored.
func (h *Hub) Register(conn *Connection) {
	if conn.Closed() {
		return
	}
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
}

// Unregister closes the connection and removes it from every room
func (h *Hub) Unregister(conn *Connection) {
	conn.Close()
	for _, key := range conn.Scopes() {
		h.Unsubscribe(key, conn)
	}
	h.mu.Lock()
	delete(h.conns, conn.ID)
	h.mu.Unlock()
}

// Subscribe adds conn to the room of key. It reports false when the
// connection is already closed.
func (h *Hub) Subscribe(key models.ScopeKey, conn *Connection) bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		return false
	}

	for {
		r := h.roomFor(key)
		r.mu.Lock()
		if r.closed {
			// Emptied and removed concurrently; take the new one
			r.mu.Unlock()
			continue
		}
		r.members[conn] = struct{}{}
		r.mu.Unlock()
		break
	}
	conn.scopes[key] = struct{}{}
	return true
}

// Unsubscribe removes conn from the room of key. Removing a non-member is a no-op.
func (h *Hub) Unsubscribe(key models.ScopeKey, conn *Connection) {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()

	if ok {
		r.mu.Lock()
		delete(r.members, conn)
		empty := len(r.members) == 0
		if empty {
			r.closed = true
		}
		r.mu.Unlock()

		if empty {
			h.mu.Lock()
			if h.rooms[key] == r {
				delete(h.rooms, key)
			}
			h.mu.Unlock()
		}
	}

	conn.mu.Lock()
	delete(conn.scopes, key)
	conn.mu.Unlock()
}

func (h *Hub) roomFor(key models.ScopeKey) *room {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[key]; ok {
		return r
	}
	r = &room{members: make(map[*Connection]struct{})}
	h.rooms[key] = r
	return r
}

// MembersOf returns a snapshot of the room's members
func (h *Hub) MembersOf(key models.ScopeKey) []*Connection {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Connection, 0, len(r.members))
	for conn := range r.members {
		members = append(members, conn)
	}
	return members
}

// Broadcast queues frame for every member of the room at the time of the
// call. Connections closed meanwhile are skipped. A connection whose queue
// is full loses the frame and is closed; its client recovers through history.
func (h *Hub) Broadcast(key models.ScopeKey, frame []byte) int {
	return h.deliver(key, frame, "")
}

// BroadcastExcept is Broadcast without the connections of one user
func (h *Hub) BroadcastExcept(key models.ScopeKey, frame []byte, userID string) int {
	return h.deliver(key, frame, userID)
}

func (h *Hub) deliver(key models.ScopeKey, frame []byte, skipUser string) int {
	delivered := 0
	for _, conn := range h.MembersOf(key) {
		if skipUser != "" && conn.UserID == skipUser {
			continue
		}
		err := conn.enqueue(frame)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, errQueueFull):
			metrics.BroadcastDrops.Inc()
			h.log.Warn().
				Str("conn_id", conn.ID).
				Str("user_id", conn.UserID).
				Str("scope", string(key)).
				Msg("slow consumer, closing connection")
			conn.Close()
		}
	}
	return delivered
}

func (h *Hub) publishEvent(key models.ScopeKey, skipUser string, eventType EventType, payload interface{}) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(eventType)).Msg("failed to encode event")
		return
	}
	h.deliver(key, frame, skipUser)
}

// Publish delivers a persisted message to its scope
func (h *Hub) Publish(msg *models.Message) {
	resp := Ok(msg)
	resp.ClientID = msg.ClientID
	switch msg.ScopeType {
	case models.ScopeSection:
		resp.SectionID = msg.ScopeID
	case models.ScopeGradeLevel:
		resp.GradeLevelID = msg.ScopeID
	}
	h.publishEvent(msg.ScopeKey, "", ReceiveEvent(msg.ScopeType), resp)
}

// NotifySeen tells the other members of a scope that readerID read count messages
func (h *Hub) NotifySeen(scope models.Scope, readerID string, count int, seenAt time.Time) {
	h.publishEvent(scope.Key(), readerID, EventMessageSeen, MessageSeenPayload{
		ReaderID: readerID,
		ScopeKey: scope.Key(),
		Count:    count,
		SeenAt:   seenAt,
	})
}

// NotifyDeleted announces a removed message to its scope
func (h *Hub) NotifyDeleted(scope models.Scope, messageID string) {
	h.publishEvent(scope.Key(), "", EventMessageDeleted, MessageDeletedPayload{
		ScopeKey:  scope.Key(),
		MessageID: messageID,
	})
}

// Stats is a point-in-time view of the registry
type Stats struct {
	Connections int      `json:"connections"`
	OnlineUsers int      `json:"onlineUsers"`
	UserIDs     []string `json:"userIds"`
	Rooms       int      `json:"rooms"`
}

// Stats returns connection statistics
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[string]struct{}, len(h.conns))
	for _, conn := range h.conns {
		users[conn.UserID] = struct{}{}
	}
	userIDs := make([]string, 0, len(users))
	for id := range users {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	return Stats{
		Connections: len(h.conns),
		OnlineUsers: len(userIDs),
		UserIDs:     userIDs,
		Rooms:       len(h.rooms),
	}
}

// IsUserOnline checks if a user has at least one connection
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.conns {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}
