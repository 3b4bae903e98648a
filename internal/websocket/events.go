package websocket

import (
	"encoding/json"
	"time"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// EventType represents different WebSocket event types
type EventType string

const (
	// Client -> server
	EventSendDirect             EventType = "send_direct"
	EventFetchDirectHistory     EventType = "fetch_direct_history"
	EventSendSection            EventType = "send_section"
	EventFetchSectionHistory    EventType = "fetch_section_history"
	EventSendGradeLevel         EventType = "send_grade_level"
	EventFetchGradeLevelHistory EventType = "fetch_grade_level_history"
	EventMarkSeen               EventType = "mark_seen"
	EventDeleteMessage          EventType = "delete_message"

	// Server -> client
	EventReceiveDirect     EventType = "receive_direct"
	EventReceiveSection    EventType = "receive_section"
	EventReceiveGradeLevel EventType = "receive_grade_level"
	EventDirectHistory     EventType = "direct_history"
	EventSectionHistory    EventType = "section_history"
	EventGradeLevelHistory EventType = "grade_level_history"
	EventSeenResult        EventType = "seen_result"
	EventMessageSeen       EventType = "message_seen"
	EventMessageDeleted    EventType = "message_deleted"
	EventDeleteResult      EventType = "delete_result"

	// Error events
	EventError EventType = "error"
)

// ReceiveEvent returns the delivery event of a scope type
func ReceiveEvent(scopeType models.ScopeType) EventType {
	switch scopeType {
	case models.ScopeSection:
		return EventReceiveSection
	case models.ScopeGradeLevel:
		return EventReceiveGradeLevel
	}
	return EventReceiveDirect
}

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// IncomingMessage represents messages received from clients
type IncomingMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the payload of every delivery, history and result event.
// Data is null whenever Success is false.
type Response struct {
	Success      bool        `json:"success"`
	Data         interface{} `json:"data"`
	Error        *string     `json:"error"`
	Code         string      `json:"code,omitempty"`
	ClientID     string      `json:"clientId,omitempty"`
	SectionID    string      `json:"sectionId,omitempty"`
	GradeLevelID string      `json:"gradeLevelId,omitempty"`
}

// Ok builds a successful response
func Ok(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// Fail builds a failed response that carries no data
func Fail(message, code string) Response {
	return Response{Success: false, Error: &message, Code: code}
}

// SendPayload is the payload of send_direct, send_section and send_grade_level
type SendPayload struct {
	SenderID     string   `json:"senderId,omitempty"`
	ReceiverID   string   `json:"receiverId,omitempty"`
	SectionID    string   `json:"sectionId,omitempty"`
	GradeLevelID string   `json:"gradeLevelId,omitempty"`
	Content      string   `json:"content"`
	Attachments  []string `json:"attachments,omitempty"`
	ClientID     string   `json:"clientId,omitempty"`
}

// HistoryPayload is the payload of the three history requests
type HistoryPayload struct {
	UserA        string `json:"userA,omitempty"`
	UserB        string `json:"userB,omitempty"`
	SectionID    string `json:"sectionId,omitempty"`
	GradeLevelID string `json:"gradeLevelId,omitempty"`
}

// ScopeRef names a scope by exactly one of its fields
type ScopeRef struct {
	OtherUserID  string `json:"otherUserId,omitempty"`
	SectionID    string `json:"sectionId,omitempty"`
	GradeLevelID string `json:"gradeLevelId,omitempty"`
}

// Scope resolves the reference from userID's point of view
func (r ScopeRef) Scope(userID string) (models.Scope, error) {
	set := 0
	var scope models.Scope
	if r.OtherUserID != "" {
		set++
		scope = models.Direct(userID, r.OtherUserID)
	}
	if r.SectionID != "" {
		set++
		scope = models.Section(r.SectionID)
	}
	if r.GradeLevelID != "" {
		set++
		scope = models.GradeLevel(r.GradeLevelID)
	}
	if set != 1 {
		return models.Scope{}, models.ErrMalformedScope
	}
	return scope, nil
}

// SeenPayload is the payload of mark_seen
type SeenPayload struct {
	ReaderID string `json:"readerId,omitempty"`
	ScopeRef
}

// DeletePayload is the payload of delete_message
type DeletePayload struct {
	MessageID string `json:"messageId"`
	ScopeRef
}

// SeenResult is the data of a successful seen_result
type SeenResult struct {
	ScopeKey models.ScopeKey `json:"scopeKey"`
	Count    int             `json:"count"`
}

// DeleteResult is the data of a successful delete_result
type DeleteResult struct {
	ScopeKey  models.ScopeKey `json:"scopeKey"`
	MessageID string          `json:"messageId"`
	Deleted   bool            `json:"deleted"`
}

// MessageSeenPayload tells the other party of a direct scope that their
// messages were read
type MessageSeenPayload struct {
	ReaderID string          `json:"readerId"`
	ScopeKey models.ScopeKey `json:"scopeKey"`
	Count    int             `json:"count"`
	SeenAt   time.Time       `json:"seenAt"`
}

// MessageDeletedPayload announces a removed message
type MessageDeletedPayload struct {
	ScopeKey  models.ScopeKey `json:"scopeKey"`
	MessageID string          `json:"messageId"`
}

// ErrorPayload represents error event payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode serializes an event with the current time
func Encode(eventType EventType, payload interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
