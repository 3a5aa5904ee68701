package sqlite

import (
	"context"
	"fmt"

	"raspored/internal/model"
)

// Seed upserts the fixture's lookup rows by id.
func (s *Store) Seed(ctx context.Context, fx model.Fixture) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		for _, g := range fx.Groups {
			if _, err := q.ExecContext(ctx, `
INSERT INTO student_groups (id, name) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name`, g.ID, g.Name); err != nil {
				return fmt.Errorf("seed group %d: %w", g.ID, err)
			}
		}
		for _, t := range fx.Teachers {
			if _, err := q.ExecContext(ctx, `
INSERT INTO teachers (id, name, email) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`, t.ID, t.Name, t.Email); err != nil {
				return fmt.Errorf("seed teacher %d: %w", t.ID, err)
			}
		}
		for _, r := range fx.Rooms {
			if _, err := q.ExecContext(ctx, `
INSERT INTO rooms (id, name) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name`, r.ID, r.Name); err != nil {
				return fmt.Errorf("seed room %d: %w", r.ID, err)
			}
		}
		for _, c := range fx.Courses {
			if _, err := q.ExecContext(ctx, `
INSERT INTO courses (id, name, semester) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, semester = excluded.semester`, c.ID, c.Name, c.Semester); err != nil {
				return fmt.Errorf("seed course %d: %w", c.ID, err)
			}
		}
		for _, st := range fx.Students {
			if _, err := q.ExecContext(ctx, `
INSERT INTO students (id, jmbag, name, group_id) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET jmbag = excluded.jmbag, name = excluded.name, group_id = excluded.group_id`,
				st.ID, st.JMBAG, st.Name, st.GroupID); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("seed student %s: %w", st.JMBAG, model.ErrReferenceNotFound)
				}
				return fmt.Errorf("seed student %s: %w", st.JMBAG, err)
			}
		}
		return nil
	})
}
