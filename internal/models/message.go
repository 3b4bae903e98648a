package models

import "time"

// Message represents a persisted chat message. Once stored it only ever
// changes through its seen-state.
type Message struct {
	ID          string     `json:"id"`
	ScopeType   ScopeType  `json:"scopeType"`
	ScopeKey    ScopeKey   `json:"scopeKey"`
	ScopeID     string     `json:"scopeId,omitempty"`    // Section or grade-level id, empty for direct messages
	SenderID    string     `json:"senderId"`
	ReceiverID  string     `json:"receiverId,omitempty"` // Empty for group messages
	Content     string     `json:"content"`
	Attachments []string   `json:"attachments"`
	Seq         int64      `json:"seq"` // Per-scope sequence, starts at 1
	Seen        bool       `json:"seen"`
	SeenAt      *time.Time `json:"seenAt,omitempty"`
	ClientID    string     `json:"clientId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Draft is an accepted send request that has not been persisted yet
type Draft struct {
	Scope       Scope
	SenderID    string
	Content     string
	Attachments []string
	ClientID    string
}

// NewMessage builds the unpersisted record for a draft. The store fills in
// ID, Seq and CreatedAt.
func (d Draft) NewMessage() Message {
	attachments := d.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	msg := Message{
		ScopeType:   d.Scope.Type,
		ScopeKey:    d.Scope.Key(),
		SenderID:    d.SenderID,
		Content:     d.Content,
		Attachments: attachments,
		ClientID:    d.ClientID,
	}
	if d.Scope.Type == ScopeDirect {
		msg.ReceiverID = d.Scope.Other(d.SenderID)
	} else {
		msg.ScopeID = d.Scope.ID
	}
	return msg
}

// Scope rebuilds the scope descriptor of the message
func (m *Message) Scope() Scope {
	switch m.ScopeType {
	case ScopeDirect:
		return Direct(m.SenderID, m.ReceiverID)
	case ScopeSection:
		return Section(m.ScopeID)
	case ScopeGradeLevel:
		return GradeLevel(m.ScopeID)
	}
	return Scope{Type: m.ScopeType, ID: m.ScopeID}
}

// Before orders messages by creation time, then by per-scope sequence
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}
