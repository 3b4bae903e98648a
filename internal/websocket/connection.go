package websocket

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errQueueFull        = errors.New("outbound queue full")
)

// Connection is one authenticated socket. It lives from a successful
// handshake until disconnect and is never reused.
type Connection struct {
	ID              string
	UserID          string
	Role            models.Role
	AuthenticatedAt time.Time
	Membership      *relations.Membership

	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	detachOnce sync.Once

	// mu guards closed and scopes. Room subscription happens under it so a
	// closed connection can never be added to a room.
	mu     sync.Mutex
	closed bool
	scopes map[models.ScopeKey]struct{}
}

func newConnection(identity models.Identity, membership *relations.Membership, buffer int) *Connection {
	if buffer < 1 {
		buffer = 1
	}
	return &Connection{
		ID:              uuid.NewString(),
		UserID:          identity.UserID,
		Role:            identity.Role,
		AuthenticatedAt: time.Now().UTC(),
		Membership:      membership,
		send:            make(chan []byte, buffer),
		done:            make(chan struct{}),
		scopes:          make(map[models.ScopeKey]struct{}),
	}
}

// Outbound yields encoded frames waiting to be written to the socket
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call many times.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

// Closed reports whether Close was called
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Scopes returns the keys of every room the connection is in, sorted
func (c *Connection) Scopes() []models.ScopeKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]models.ScopeKey, 0, len(c.scopes))
	for key := range c.scopes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// enqueue queues a frame without blocking
func (c *Connection) enqueue(frame []byte) error {
	if c.Closed() {
		return errConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errQueueFull
	}
}

// SendEvent queues one event for this connection only. A full queue closes
// the connection.
func (c *Connection) SendEvent(eventType EventType, payload interface{}) error {
	frame, err := Encode(eventType, payload)
	if err != nil {
		return err
	}
	if err := c.enqueue(frame); err != nil {
		if errors.Is(err, errQueueFull) {
			c.Close()
		}
		return err
	}
	return nil
}
