package models

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned for roles the messaging layer does not serve
var ErrUnknownRole = errors.New("unknown role")

// Role is the account role assigned by the management subsystem
type Role string

const (
	RoleDirector Role = "DIRECTOR"
	RoleTeacher  Role = "TEACHER"
	RoleParent   Role = "PARENT"
	RoleStudent  Role = "STUDENT"
)

// ParseRole normalizes a role string
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleDirector, RoleTeacher, RoleParent, RoleStudent:
		return role, nil
	}
	return "", ErrUnknownRole
}

// Identity is an already-validated caller: who they are and in which role
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// User is an account as seen by the relation graph
type User struct {
	ID   string `json:"id" db:"id"`
	Role Role   `json:"role" db:"role"`
}
