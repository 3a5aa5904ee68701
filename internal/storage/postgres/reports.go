package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"raspored/internal/model"
	"raspored/internal/week"
)

func (s *Store) StudentSchedule(ctx context.Context, jmbag string, wk *week.ISOWeek) ([]model.StudentScheduleRow, error) {
	var (
		student string
		groupID int64
	)
	err := s.q(ctx).QueryRow(ctx, `SELECT name, group_id FROM students WHERE jmbag = $1`, jmbag).Scan(&student, &groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrStudentNotFound
		}
		return nil, fmt.Errorf("get student: %w", err)
	}

	query := `
SELECT e.iso_year, e.iso_week, e.day, e.start_min, e.end_min, c.name, r.name, t.name
FROM events e
JOIN courses c ON c.id = e.course_id
JOIN rooms r ON r.id = e.room_id
JOIN teachers t ON t.id = e.teacher_id
WHERE e.group_id = $1`
	args := []any{groupID}
	if wk != nil {
		query += ` AND e.iso_year = $2 AND e.iso_week = $3`
		args = append(args, wk.Year, wk.Week)
	}
	query += `
ORDER BY e.iso_year, e.iso_week, e.day, e.start_min, e.id`

	out := []model.StudentScheduleRow{}
	err = s.eachRow(ctx, query, func(row pgx.Row) error {
		r := model.StudentScheduleRow{JMBAG: jmbag, Student: student}
		var day, startMin, endMin int
		if err := row.Scan(&r.Year, &r.Week, &day, &startMin, &endMin, &r.Course, &r.Room, &r.Teacher); err != nil {
			return err
		}
		r.Day = time.Weekday(day)
		r.Start = model.TimeFromMinutes(startMin)
		r.End = model.TimeFromMinutes(endMin)
		out = append(out, r)
		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("student schedule: %w", err)
	}
	return out, nil
}

func (s *Store) TeacherCourses(ctx context.Context) ([]model.TeacherCourseRow, error) {
	const query = `
SELECT DISTINCT t.name, c.name, c.semester
FROM events e
JOIN teachers t ON t.id = e.teacher_id
JOIN courses c ON c.id = e.course_id
ORDER BY t.name, c.name`
	out := []model.TeacherCourseRow{}
	err := s.eachRow(ctx, query, func(row pgx.Row) error {
		var r model.TeacherCourseRow
		if err := row.Scan(&r.Teacher, &r.Course, &r.Semester); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("teacher courses: %w", err)
	}
	return out, nil
}

func (s *Store) EmailChanges(ctx context.Context) ([]model.EmailChange, error) {
	const query = `
SELECT l.teacher_id, t.name, l.old_email, l.changed_at
FROM teacher_email_log l
JOIN teachers t ON t.id = l.teacher_id
ORDER BY l.changed_at DESC, l.id DESC`
	out := []model.EmailChange{}
	err := s.eachRow(ctx, query, func(row pgx.Row) error {
		var c model.EmailChange
		if err := row.Scan(&c.TeacherID, &c.Teacher, &c.OldEmail, &c.ChangedAt); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("email changes: %w", err)
	}
	return out, nil
}

func (s *Store) EventHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	const query = `
SELECT h.event_id, COALESCE(c.name, ''), h.iso_year, h.iso_week, h.day, h.start_min, h.end_min,
       h.reason, h.archived_at
FROM event_history h
LEFT JOIN courses c ON c.id = h.course_id
ORDER BY h.archived_at DESC, h.id DESC`
	out := []model.HistoryEntry{}
	err := s.eachRow(ctx, query, func(row pgx.Row) error {
		var (
			h                     model.HistoryEntry
			day, startMin, endMin int
		)
		if err := row.Scan(&h.EventID, &h.Course, &h.Year, &h.Week, &day, &startMin, &endMin, &h.Reason, &h.ArchivedAt); err != nil {
			return err
		}
		h.Day = time.Weekday(day)
		h.Start = model.TimeFromMinutes(startMin)
		h.End = model.TimeFromMinutes(endMin)
		out = append(out, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event history: %w", err)
	}
	return out, nil
}

// UpdateTeacherEmail sets a teacher's email and logs the previous address.
// Setting the same address again is a no-op.
func (s *Store) UpdateTeacherEmail(ctx context.Context, teacherID int64, email string, changedAt time.Time) (model.Teacher, error) {
	var t model.Teacher
	err := withTx(ctx, s.pool, func(ctx context.Context) error {
		err := s.q(ctx).QueryRow(ctx,
			`SELECT id, name, email FROM teachers WHERE id = $1 FOR UPDATE`, teacherID,
		).Scan(&t.ID, &t.Name, &t.Email)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrTeacherNotFound
			}
			return fmt.Errorf("get teacher: %w", err)
		}
		if t.Email == email {
			return nil
		}
		if _, err := s.q(ctx).Exec(ctx,
			`INSERT INTO teacher_email_log (teacher_id, old_email, changed_at) VALUES ($1, $2, $3)`,
			teacherID, t.Email, changedAt,
		); err != nil {
			return fmt.Errorf("log email change: %w", err)
		}
		if _, err := s.q(ctx).Exec(ctx, `UPDATE teachers SET email = $2 WHERE id = $1`, teacherID, email); err != nil {
			return fmt.Errorf("update teacher email: %w", err)
		}
		t.Email = email
		return nil
	})
	if err != nil {
		return model.Teacher{}, err
	}
	return t, nil
}
