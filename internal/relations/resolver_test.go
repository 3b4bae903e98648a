package relations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/mocks"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
)

func loadSchool(t *testing.T) *relations.Snapshot {
	t.Helper()
	graph, err := relations.LoadStaticGraph("testdata/school.json")
	require.NoError(t, err)
	snap, err := graph.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestResolve_Director(t *testing.T) {
	req := require.New(t)
	m := relations.Resolve("dir1", models.RoleDirector, loadSchool(t))

	req.Equal([]string{"p1", "p2", "p3", "t1", "t2"}, m.Correspondents())
	req.Equal([]string{"7A", "7B", "8A"}, m.Sections())
	req.Equal([]string{"g7", "g8"}, m.GradeLevels())
	req.False(m.Allows(models.Direct("dir1", "dir2")))
	req.False(m.Allows(models.Direct("dir1", "st1")))
}

func TestResolve_Teacher(t *testing.T) {
	req := require.New(t)
	m := relations.Resolve("t1", models.RoleTeacher, loadSchool(t))

	req.Equal([]string{"dir1", "dir2", "p1", "p3"}, m.Correspondents())
	req.Equal([]string{"7A", "8A"}, m.Sections())
	req.Equal([]string{"g7", "g8"}, m.GradeLevels())
	req.True(m.Allows(models.Section("8A")))
	req.False(m.Allows(models.Section("7B")))
	req.False(m.Allows(models.Direct("t1", "p2")))
}

func TestResolve_Parent(t *testing.T) {
	req := require.New(t)
	m := relations.Resolve("p1", models.RoleParent, loadSchool(t))

	req.Equal([]string{"dir1", "dir2", "t1", "t2"}, m.Correspondents())
	req.Equal([]string{"7A", "8A"}, m.Sections())
	req.Equal([]string{"g7", "g8"}, m.GradeLevels())

	p2 := relations.Resolve("p2", models.RoleParent, loadSchool(t))
	req.Equal([]string{"dir1", "dir2", "t2"}, p2.Correspondents())
	req.Equal([]string{"g7"}, p2.GradeLevels())
}

func TestResolve_Student(t *testing.T) {
	req := require.New(t)
	m := relations.Resolve("st3", models.RoleStudent, loadSchool(t))

	req.Empty(m.Correspondents())
	req.Equal([]models.Scope{models.Section("8A"), models.GradeLevel("g8")}, m.Scopes())
}

func TestResolve_DirectRelationsAreSymmetric(t *testing.T) {
	snap := loadSchool(t)
	memberships := map[string]*relations.Membership{}
	for _, u := range snap.Users {
		memberships[u.ID] = relations.Resolve(u.ID, u.Role, snap)
	}
	for id, m := range memberships {
		for _, other := range m.Correspondents() {
			require.True(t, memberships[other].Allows(models.Direct(other, id)),
				"%s may message %s but not the other way round", id, other)
		}
	}
}

func TestMembership_Allows(t *testing.T) {
	req := require.New(t)
	m := relations.Resolve("t2", models.RoleTeacher, loadSchool(t))

	req.True(m.Allows(models.Direct("p2", "t2")))
	req.False(m.Allows(models.Direct("p2", "t1")), "not a party of the pair")
	req.True(m.Allows(models.Direct("t2", "t2")), "self pair is left to scope validation")
	req.False(m.Allows(models.Scope{Type: "CHANNEL", ID: "7B"}))

	var nilMembership *relations.Membership
	req.False(nilMembership.Allows(models.Section("7B")))
}

func TestResolver_RequeriesGraphOnEveryResolution(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	graph := relations.NewStaticGraph(loadSchool(t))
	resolver := relations.NewResolver(graph, zerolog.Nop())

	before, err := resolver.ResolveScopes(ctx, "t2", models.RoleTeacher)
	req.NoError(err)
	req.NotContains(before.Sections(), "7A")

	// The management subsystem reassigns t2 to 7A.
	snap := loadSchool(t)
	snap.Sections[0].TeacherIDs = append(snap.Sections[0].TeacherIDs, "t2")
	graph.Replace(snap)

	after, err := resolver.ResolveScopes(ctx, "t2", models.RoleTeacher)
	req.NoError(err)
	req.Contains(after.Sections(), "7A")
	req.Contains(after.Correspondents(), "p1")
}

func TestResolver_GraphFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	graph := mocks.NewMockGraph(ctrl)
	graph.EXPECT().Snapshot(gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)

	resolver := relations.NewResolver(graph, zerolog.Nop())
	_, err := resolver.ResolveScopes(context.Background(), "t1", models.RoleTeacher)
	require.ErrorContains(t, err, "connection refused")
}
