package websocket

//go:generate go run go.uber.org/mock/mockgen -source=manager.go -destination=../mocks/mock_manager.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/metrics"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
)

// ErrAuth rejects a connection attempt with a missing or invalid credential
var ErrAuth = errors.New("authentication failed")

// IdentityResolver maps a bearer credential to a user id and role
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (models.Identity, error)
}

// ScopeResolver computes the scopes a user belongs to
type ScopeResolver interface {
	ResolveScopes(ctx context.Context, userID string, role models.Role) (*relations.Membership, error)
}

// Manager owns connection lifecycles: handshake, room subscription and
// cleanup.
type Manager struct {
	identities IdentityResolver
	scopes     ScopeResolver
	hub        *Hub
	sendBuffer int
	log        zerolog.Logger
}

func NewManager(identities IdentityResolver, scopes ScopeResolver, hub *Hub, sendBuffer int, log zerolog.Logger) *Manager {
	return &Manager{
		identities: identities,
		scopes:     scopes,
		hub:        hub,
		sendBuffer: sendBuffer,
		log:        log.With().Str("component", "connection_manager").Logger(),
	}
}

// Hub returns the room registry the manager subscribes connections in
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Authenticate validates a credential
func (m *Manager) Authenticate(ctx context.Context, credential string) (models.Identity, error) {
	if credential == "" {
		return models.Identity{}, fmt.Errorf("%w: no credential", ErrAuth)
	}
	identity, err := m.identities.Resolve(ctx, credential)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return identity, nil
}

// Attach creates a connection for an authenticated identity and subscribes
// it to every scope the relation graph currently grants.
func (m *Manager) Attach(ctx context.Context, identity models.Identity) (*Connection, error) {
	membership, err := m.scopes.ResolveScopes(ctx, identity.UserID, identity.Role)
	if err != nil {
		return nil, err
	}

	conn := newConnection(identity, membership, m.sendBuffer)
	scopes := membership.Scopes()
	for _, scope := range scopes {
		m.hub.Subscribe(scope.Key(), conn)
	}
	// Registered last so a user shown online is already in their rooms
	m.hub.Register(conn)
	metrics.ConnectionsActive.Inc()

	m.log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("role", string(conn.Role)).
		Int("scopes", len(scopes)).
		Msg("client connected")
	return conn, nil
}

// Connect authenticates a credential and attaches a new connection
func (m *Manager) Connect(ctx context.Context, credential string) (*Connection, error) {
	identity, err := m.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	return m.Attach(ctx, identity)
}

// Disconnect removes the connection from every room. Safe to call any
// number of times.
func (m *Manager) Disconnect(conn *Connection) {
	if conn == nil {
		return
	}
	m.hub.Unregister(conn)
	conn.detachOnce.Do(func() {
		metrics.ConnectionsActive.Dec()
		m.log.Info().
			Str("conn_id", conn.ID).
			Str("user_id", conn.UserID).
			Dur("connected_for", time.Since(conn.AuthenticatedAt)).
			Msg("client disconnected")
	})
}
