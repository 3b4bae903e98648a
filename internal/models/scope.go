package models

import (
	"errors"
	"strings"
)

// ErrMalformedScope is returned when a scope descriptor cannot address a conversation
var ErrMalformedScope = errors.New("malformed scope")

// ScopeType identifies which kind of conversation a message belongs to
type ScopeType string

const (
	ScopeDirect     ScopeType = "DIRECT"
	ScopeSection    ScopeType = "SECTION"
	ScopeGradeLevel ScopeType = "GRADE_LEVEL"
)

// ScopeKey is the order-independent storage and room key of a scope
type ScopeKey string

const keySeparator = ":"

// Scope describes a conversation: a direct pair, a section, or a grade level.
// Direct pairs are normalized so that Users[0] <= Users[1].
type Scope struct {
	Type  ScopeType
	ID    string
	Users [2]string
}

// Direct builds the scope shared by two users regardless of argument order
func Direct(a, b string) Scope {
	if b < a {
		a, b = b, a
	}
	return Scope{Type: ScopeDirect, Users: [2]string{a, b}}
}

// Section builds a section group scope
func Section(sectionID string) Scope {
	return Scope{Type: ScopeSection, ID: sectionID}
}

// GradeLevel builds a grade-level group scope
func GradeLevel(gradeLevelID string) Scope {
	return Scope{Type: ScopeGradeLevel, ID: gradeLevelID}
}

// IsGroup reports whether the scope is a section or grade-level scope
func (s Scope) IsGroup() bool {
	return s.Type == ScopeSection || s.Type == ScopeGradeLevel
}

// Key returns the room and storage key of the scope
func (s Scope) Key() ScopeKey {
	switch s.Type {
	case ScopeDirect:
		return ScopeKey("direct" + keySeparator + s.Users[0] + keySeparator + s.Users[1])
	case ScopeSection:
		return ScopeKey("section" + keySeparator + s.ID)
	case ScopeGradeLevel:
		return ScopeKey("grade_level" + keySeparator + s.ID)
	}
	return ScopeKey("unknown" + keySeparator + s.ID)
}

// Includes reports whether userID is one of the two parties of a direct scope
func (s Scope) Includes(userID string) bool {
	return s.Type == ScopeDirect && userID != "" && (s.Users[0] == userID || s.Users[1] == userID)
}

// Other returns the counterparty of userID in a direct scope
func (s Scope) Other(userID string) string {
	if s.Users[0] == userID {
		return s.Users[1]
	}
	return s.Users[0]
}

// Validate checks that the scope addresses exactly one conversation.
// A direct scope needs two distinct user ids.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeDirect:
		if !validID(s.Users[0]) || !validID(s.Users[1]) {
			return ErrMalformedScope
		}
		if s.Users[0] == s.Users[1] {
			return ErrMalformedScope
		}
		return nil
	case ScopeSection, ScopeGradeLevel:
		if !validID(s.ID) {
			return ErrMalformedScope
		}
		return nil
	}
	return ErrMalformedScope
}

func (s Scope) String() string {
	return string(s.Key())
}

// ParseScopeKey is the inverse of Scope.Key
func ParseScopeKey(key ScopeKey) (Scope, error) {
	parts := strings.Split(string(key), keySeparator)
	switch {
	case len(parts) == 3 && parts[0] == "direct":
		scope := Direct(parts[1], parts[2])
		return scope, scope.Validate()
	case len(parts) == 2 && parts[0] == "section":
		scope := Section(parts[1])
		return scope, scope.Validate()
	case len(parts) == 2 && parts[0] == "grade_level":
		scope := GradeLevel(parts[1])
		return scope, scope.Validate()
	}
	return Scope{}, ErrMalformedScope
}

// ParseScopeType accepts the wire spelling of a scope type, case-insensitively
func ParseScopeType(raw string) (ScopeType, error) {
	switch ScopeType(strings.ToUpper(strings.TrimSpace(raw))) {
	case ScopeDirect:
		return ScopeDirect, nil
	case ScopeSection:
		return ScopeSection, nil
	case ScopeGradeLevel, "GRADE-LEVEL", "GRADELEVEL":
		return ScopeGradeLevel, nil
	}
	return "", ErrMalformedScope
}

func validID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.Contains(id, keySeparator)
}
