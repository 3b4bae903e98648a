package relations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// PostgresGraph reads the management subsystem's tables. All queries run in
// one read-only repeatable-read transaction so the snapshot is consistent.
type PostgresGraph struct {
	pool *pgxpool.Pool
}

func NewPostgresGraph(pool *pgxpool.Pool) *PostgresGraph {
	return &PostgresGraph{pool: pool}
}

func (g *PostgresGraph) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	snap := &Snapshot{}

	users, err := queryPairs(ctx, tx, `
		SELECT id::text, UPPER(role) FROM users
		WHERE UPPER(role) IN ('DIRECTOR', 'TEACHER', 'PARENT', 'STUDENT')
	`)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	for _, u := range users {
		snap.Users = append(snap.Users, models.User{ID: u[0], Role: models.Role(u[1])})
	}

	sections, err := queryPairs(ctx, tx, `SELECT id::text, COALESCE(grade_level_id::text, '') FROM sections`)
	if err != nil {
		return nil, fmt.Errorf("sections: %w", err)
	}
	teachers, err := queryPairs(ctx, tx, `SELECT section_id::text, teacher_id::text FROM section_teachers`)
	if err != nil {
		return nil, fmt.Errorf("section_teachers: %w", err)
	}
	teachersBySection := groupPairs(teachers)
	for _, s := range sections {
		snap.Sections = append(snap.Sections, models.ClassSection{
			ID:           s[0],
			GradeLevelID: s[1],
			TeacherIDs:   teachersBySection[s[0]],
		})
	}

	students, err := queryPairs(ctx, tx, `SELECT id::text, section_id::text FROM students WHERE section_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("students: %w", err)
	}
	parents, err := queryPairs(ctx, tx, `SELECT student_id::text, parent_id::text FROM student_parents`)
	if err != nil {
		return nil, fmt.Errorf("student_parents: %w", err)
	}
	parentsByStudent := groupPairs(parents)
	for _, s := range students {
		snap.Students = append(snap.Students, models.Student{
			ID:        s[0],
			SectionID: s[1],
			ParentIDs: parentsByStudent[s[0]],
		})
	}

	return snap, nil
}

func queryPairs(ctx context.Context, tx pgx.Tx, query string) ([][2]string, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func groupPairs(pairs [][2]string) map[string][]string {
	grouped := make(map[string][]string)
	for _, p := range pairs {
		grouped[p[0]] = append(grouped[p[0]], p[1])
	}
	return grouped
}
