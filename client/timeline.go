package client

import (
	"sort"
	"sync"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// PendingSend is a send the server has not confirmed yet
type PendingSend struct {
	ClientID string
	Content  string
	Failed   bool
	Code     string
}

// Timeline is the client-side view of one scope: confirmed messages in
// (createdAt, seq) order, de-duplicated by id, plus unconfirmed sends.
type Timeline struct {
	mu       sync.Mutex
	scope    models.ScopeKey
	ids      map[string]struct{}
	messages []models.Message
	pending  map[string]*PendingSend
	order    []string
}

func NewTimeline(scope models.ScopeKey) *Timeline {
	return &Timeline{
		scope:   scope,
		ids:     make(map[string]struct{}),
		pending: make(map[string]*PendingSend),
	}
}

// AddPending records a send that is waiting for the server's echo
func (t *Timeline) AddPending(clientID, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[clientID]; ok {
		return
	}
	t.pending[clientID] = &PendingSend{ClientID: clientID, Content: content}
	t.order = append(t.order, clientID)
}

// Fail marks a pending send as rejected by the server
func (t *Timeline) Fail(clientID, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[clientID]; ok {
		p.Failed = true
		p.Code = code
	}
}

// Apply adds a live message. It reports false for messages of another scope
// and for ids already present.
func (t *Timeline) Apply(msg models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insert(msg)
}

func (t *Timeline) insert(msg models.Message) bool {
	if msg.ScopeKey != t.scope {
		return false
	}
	if msg.ClientID != "" {
		t.confirm(msg.ClientID)
	}
	if _, ok := t.ids[msg.ID]; ok {
		return false
	}
	t.ids[msg.ID] = struct{}{}

	i := sort.Search(len(t.messages), func(i int) bool {
		return msg.Before(&t.messages[i])
	})
	t.messages = append(t.messages, models.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
	return true
}

func (t *Timeline) confirm(clientID string) {
	if _, ok := t.pending[clientID]; !ok {
		return
	}
	delete(t.pending, clientID)
	for i, id := range t.order {
		if id == clientID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Reconcile replaces the timeline with a history response. Live messages
// newer than the newest history entry are kept, since they may have been
// broadcast after the history was read.
func (t *Timeline) Reconcile(history []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var newest int64
	for _, msg := range history {
		if msg.Seq > newest {
			newest = msg.Seq
		}
	}
	var later []models.Message
	for _, msg := range t.messages {
		if msg.Seq > newest {
			later = append(later, msg)
		}
	}

	t.ids = make(map[string]struct{}, len(history)+len(later))
	t.messages = t.messages[:0]
	for _, msg := range history {
		t.insert(msg)
	}
	for _, msg := range later {
		t.insert(msg)
	}
}

// Remove drops a deleted message
func (t *Timeline) Remove(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ids[messageID]; !ok {
		return false
	}
	delete(t.ids, messageID)
	for i := range t.messages {
		if t.messages[i].ID == messageID {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			break
		}
	}
	return true
}

// Messages returns a copy of the confirmed messages
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Message(nil), t.messages...)
}

// Pending returns unconfirmed sends in the order they were made
func (t *Timeline) Pending() []PendingSend {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingSend, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.pending[id])
	}
	return out
}

// Contains reports whether a message id is in the timeline
func (t *Timeline) Contains(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[messageID]
	return ok
}
