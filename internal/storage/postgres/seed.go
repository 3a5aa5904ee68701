package postgres

import (
	"context"
	"fmt"

	"raspored/internal/model"
)

// Seed upserts the fixture's lookup rows by id.
func (s *Store) Seed(ctx context.Context, fx model.Fixture) error {
	return withTx(ctx, s.pool, func(ctx context.Context) error {
		q := s.q(ctx)
		for _, g := range fx.Groups {
			if _, err := q.Exec(ctx, `
INSERT INTO student_groups (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, g.ID, g.Name); err != nil {
				return fmt.Errorf("seed group %d: %w", g.ID, err)
			}
		}
		for _, t := range fx.Teachers {
			if _, err := q.Exec(ctx, `
INSERT INTO teachers (id, name, email) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`, t.ID, t.Name, t.Email); err != nil {
				return fmt.Errorf("seed teacher %d: %w", t.ID, err)
			}
		}
		for _, r := range fx.Rooms {
			if _, err := q.Exec(ctx, `
INSERT INTO rooms (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, r.ID, r.Name); err != nil {
				return fmt.Errorf("seed room %d: %w", r.ID, err)
			}
		}
		for _, c := range fx.Courses {
			if _, err := q.Exec(ctx, `
INSERT INTO courses (id, name, semester) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, semester = EXCLUDED.semester`, c.ID, c.Name, c.Semester); err != nil {
				return fmt.Errorf("seed course %d: %w", c.ID, err)
			}
		}
		for _, st := range fx.Students {
			if _, err := q.Exec(ctx, `
INSERT INTO students (id, jmbag, name, group_id) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET jmbag = EXCLUDED.jmbag, name = EXCLUDED.name, group_id = EXCLUDED.group_id`,
				st.ID, st.JMBAG, st.Name, st.GroupID); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("seed student %s: %w", st.JMBAG, model.ErrReferenceNotFound)
				}
				return fmt.Errorf("seed student %s: %w", st.JMBAG, err)
			}
		}

		// Explicit ids leave the serial sequences behind.
		for _, table := range []string{"student_groups", "teachers", "rooms", "courses", "students"} {
			stmt := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`, table)
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("sync %s sequence: %w", table, err)
			}
		}
		return nil
	})
}
