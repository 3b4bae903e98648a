// Package relations computes who may message whom from the management
// subsystem's relation graph.
package relations

//go:generate go run go.uber.org/mock/mockgen -source=resolver.go -destination=../mocks/mock_graph.go -package=mocks

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// Snapshot is a point-in-time copy of the relation graph
type Snapshot struct {
	Users    []models.User         `json:"users"`
	Sections []models.ClassSection `json:"sections"`
	Students []models.Student      `json:"students"`
}

// Graph supplies relation snapshots. It is queried on every resolution so
// re-assignments made in the management subsystem apply to new connections.
type Graph interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Membership is the set of scopes a user may read and write
type Membership struct {
	UserID         string
	Role           models.Role
	correspondents map[string]struct{}
	sections       map[string]struct{}
	gradeLevels    map[string]struct{}
}

func newMembership(userID string, role models.Role) *Membership {
	return &Membership{
		UserID:         userID,
		Role:           role,
		correspondents: make(map[string]struct{}),
		sections:       make(map[string]struct{}),
		gradeLevels:    make(map[string]struct{}),
	}
}

// Allows reports whether the member may send to and read from the scope.
// For a direct scope the member must be one of the pair and the other party
// must be a correspondent; a pair of the member with themself passes here
// and is rejected as malformed by Scope.Validate.
func (m *Membership) Allows(scope models.Scope) bool {
	if m == nil {
		return false
	}
	switch scope.Type {
	case models.ScopeDirect:
		if !scope.Includes(m.UserID) {
			return false
		}
		other := scope.Other(m.UserID)
		if other == m.UserID {
			return true
		}
		_, ok := m.correspondents[other]
		return ok
	case models.ScopeSection:
		_, ok := m.sections[scope.ID]
		return ok
	case models.ScopeGradeLevel:
		_, ok := m.gradeLevels[scope.ID]
		return ok
	}
	return false
}

// Correspondents returns the users this member may message directly, sorted
func (m *Membership) Correspondents() []string {
	return sortedKeys(m.correspondents)
}

func (m *Membership) Sections() []string {
	return sortedKeys(m.sections)
}

func (m *Membership) GradeLevels() []string {
	return sortedKeys(m.gradeLevels)
}

// Scopes lists every scope the member belongs to: one direct scope per
// correspondent, then sections, then grade levels
func (m *Membership) Scopes() []models.Scope {
	scopes := make([]models.Scope, 0, len(m.correspondents)+len(m.sections)+len(m.gradeLevels))
	for _, other := range m.Correspondents() {
		scopes = append(scopes, models.Direct(m.UserID, other))
	}
	for _, id := range m.Sections() {
		scopes = append(scopes, models.Section(id))
	}
	for _, id := range m.GradeLevels() {
		scopes = append(scopes, models.GradeLevel(id))
	}
	return scopes
}

// Resolve computes a membership as a pure function of the caller and a snapshot.
//
//   - DIRECTOR: every teacher and parent; every section and grade level.
//   - TEACHER: directors and the parents of students in the teacher's
//     sections; those sections and their grade levels.
//   - PARENT: directors and the teachers of their children's sections; those
//     sections and their grade levels.
//   - STUDENT: no direct correspondents; own section and its grade level.
func Resolve(userID string, role models.Role, snap *Snapshot) *Membership {
	m := newMembership(userID, role)
	if snap == nil {
		return m
	}

	directors := lo.FilterMap(snap.Users, func(u models.User, _ int) (string, bool) {
		return u.ID, u.Role == models.RoleDirector
	})

	joinSection := func(section models.ClassSection) {
		m.sections[section.ID] = struct{}{}
		if section.GradeLevelID != "" {
			m.gradeLevels[section.GradeLevelID] = struct{}{}
		}
	}
	sectionsByID := lo.KeyBy(snap.Sections, func(s models.ClassSection) string { return s.ID })

	switch role {
	case models.RoleDirector:
		for _, u := range snap.Users {
			if u.Role == models.RoleTeacher || u.Role == models.RoleParent {
				m.addCorrespondent(u.ID)
			}
		}
		for _, section := range snap.Sections {
			joinSection(section)
		}

	case models.RoleTeacher:
		m.addCorrespondents(directors)
		taught := lo.Filter(snap.Sections, func(s models.ClassSection, _ int) bool {
			return lo.Contains(s.TeacherIDs, userID)
		})
		for _, section := range taught {
			joinSection(section)
		}
		for _, student := range snap.Students {
			if _, ok := m.sections[student.SectionID]; ok {
				m.addCorrespondents(student.ParentIDs)
			}
		}

	case models.RoleParent:
		m.addCorrespondents(directors)
		children := lo.Filter(snap.Students, func(s models.Student, _ int) bool {
			return lo.Contains(s.ParentIDs, userID)
		})
		for _, child := range children {
			section, ok := sectionsByID[child.SectionID]
			if !ok {
				continue
			}
			joinSection(section)
			m.addCorrespondents(section.TeacherIDs)
		}

	case models.RoleStudent:
		for _, student := range snap.Students {
			if student.ID != userID {
				continue
			}
			if section, ok := sectionsByID[student.SectionID]; ok {
				joinSection(section)
			}
		}
	}

	return m
}

func (m *Membership) addCorrespondent(id string) {
	if id == "" || id == m.UserID {
		return
	}
	m.correspondents[id] = struct{}{}
}

func (m *Membership) addCorrespondents(ids []string) {
	for _, id := range ids {
		m.addCorrespondent(id)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}

// Resolver loads a fresh snapshot for each resolution
type Resolver struct {
	graph Graph
	log   zerolog.Logger
}

func NewResolver(graph Graph, log zerolog.Logger) *Resolver {
	return &Resolver{
		graph: graph,
		log:   log.With().Str("component", "relation_resolver").Logger(),
	}
}

// ResolveScopes returns the scopes userID may use in the given role
func (r *Resolver) ResolveScopes(ctx context.Context, userID string, role models.Role) (*Membership, error) {
	snap, err := r.graph.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load relation graph: %w", err)
	}
	m := Resolve(userID, role, snap)
	r.log.Debug().
		Str("user_id", userID).
		Str("role", string(role)).
		Int("correspondents", len(m.correspondents)).
		Int("sections", len(m.sections)).
		Int("grade_levels", len(m.gradeLevels)).
		Msg("scopes resolved")
	return m, nil
}
