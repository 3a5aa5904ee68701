// Package postgres stores the schedule in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"raspored/internal/model"
	"raspored/internal/week"
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const eventColumns = `
SELECT e.id, e.iso_year, e.iso_week, e.day, e.start_min, e.end_min,
       e.course_id, c.name, e.form,
       e.room_id, r.name,
       e.teacher_id, t.name,
       e.group_id, g.name
FROM events e
JOIN courses c ON c.id = e.course_id
JOIN rooms r ON r.id = e.room_id
JOIN teachers t ON t.id = e.teacher_id
JOIN student_groups g ON g.id = e.group_id`

func scanEvent(row pgx.Row) (model.Event, error) {
	var (
		ev               model.Event
		day              int
		startMin, endMin int
	)
	err := row.Scan(
		&ev.ID, &ev.Year, &ev.Week, &day, &startMin, &endMin,
		&ev.CourseID, &ev.Course, &ev.Form,
		&ev.RoomID, &ev.Room,
		&ev.TeacherID, &ev.Teacher,
		&ev.GroupID, &ev.Group,
	)
	if err != nil {
		return model.Event{}, err
	}
	ev.Day = time.Weekday(day)
	ev.Start = model.TimeFromMinutes(startMin)
	ev.End = model.TimeFromMinutes(endMin)
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, wk week.ISOWeek) ([]model.Event, error) {
	const query = eventColumns + `
WHERE e.iso_year = $1 AND e.iso_week = $2
ORDER BY e.day, e.start_min, e.end_min, e.id`
	rows, err := s.q(ctx).Query(ctx, query, wk.Year, wk.Week)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return events, nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	const query = eventColumns + `
WHERE e.id = $1`
	ev, err := scanEvent(s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, model.ErrEventNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	var created model.Event
	err := withTx(ctx, s.pool, func(ctx context.Context) error {
		const stmt = `
INSERT INTO events (iso_year, iso_week, day, start_min, end_min, course_id, form, room_id, teacher_id, group_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`
		var id int64
		err := s.q(ctx).QueryRow(ctx, stmt,
			ev.Year, ev.Week, int(ev.Day), ev.Start.Minutes(), ev.End.Minutes(),
			ev.CourseID, ev.Form, ev.RoomID, ev.TeacherID, ev.GroupID,
		).Scan(&id)
		if err != nil {
			return mapWriteError("create event", err)
		}
		created, err = s.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return model.Event{}, err
	}
	return created, nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev model.Event, archivedAt time.Time) (model.Event, error) {
	var updated model.Event
	err := withTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.archiveEvent(ctx, ev.ID, model.HistoryReasonUpdate, archivedAt); err != nil {
			return err
		}
		const stmt = `
UPDATE events
SET iso_year = $2, iso_week = $3, day = $4, start_min = $5, end_min = $6,
    course_id = $7, form = $8, room_id = $9, teacher_id = $10, group_id = $11
WHERE id = $1`
		_, err := s.q(ctx).Exec(ctx, stmt,
			ev.ID, ev.Year, ev.Week, int(ev.Day), ev.Start.Minutes(), ev.End.Minutes(),
			ev.CourseID, ev.Form, ev.RoomID, ev.TeacherID, ev.GroupID,
		)
		if err != nil {
			return mapWriteError("update event", err)
		}
		updated, err = s.GetEvent(ctx, ev.ID)
		return err
	})
	if err != nil {
		return model.Event{}, err
	}
	return updated, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id int64, archivedAt time.Time) error {
	return withTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.archiveEvent(ctx, id, model.HistoryReasonDelete, archivedAt); err != nil {
			return err
		}
		if _, err := s.q(ctx).Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
}

// archiveEvent copies the current row of event id into event_history.
func (s *Store) archiveEvent(ctx context.Context, id int64, reason string, at time.Time) error {
	const stmt = `
INSERT INTO event_history (event_id, iso_year, iso_week, day, start_min, end_min,
                           course_id, form, room_id, teacher_id, group_id, reason, archived_at)
SELECT id, iso_year, iso_week, day, start_min, end_min,
       course_id, form, room_id, teacher_id, group_id, $2, $3
FROM events
WHERE id = $1`
	tag, err := s.q(ctx).Exec(ctx, stmt, id, reason, at)
	if err != nil {
		return fmt.Errorf("archive event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrEventNotFound
	}
	return nil
}

func (s *Store) FormData(ctx context.Context) (model.FormData, error) {
	fd := model.FormData{
		Groups:   []model.Group{},
		Teachers: []model.Teacher{},
		Rooms:    []model.Room{},
		Courses:  []model.Course{},
	}
	err := s.eachRow(ctx, `SELECT id, name FROM student_groups ORDER BY name, id`, func(row pgx.Row) error {
		var g model.Group
		if err := row.Scan(&g.ID, &g.Name); err != nil {
			return err
		}
		fd.Groups = append(fd.Groups, g)
		return nil
	})
	if err != nil {
		return model.FormData{}, fmt.Errorf("list groups: %w", err)
	}
	err = s.eachRow(ctx, `SELECT id, name, email FROM teachers ORDER BY name, id`, func(row pgx.Row) error {
		var t model.Teacher
		if err := row.Scan(&t.ID, &t.Name, &t.Email); err != nil {
			return err
		}
		fd.Teachers = append(fd.Teachers, t)
		return nil
	})
	if err != nil {
		return model.FormData{}, fmt.Errorf("list teachers: %w", err)
	}
	err = s.eachRow(ctx, `SELECT id, name FROM rooms ORDER BY name, id`, func(row pgx.Row) error {
		var r model.Room
		if err := row.Scan(&r.ID, &r.Name); err != nil {
			return err
		}
		fd.Rooms = append(fd.Rooms, r)
		return nil
	})
	if err != nil {
		return model.FormData{}, fmt.Errorf("list rooms: %w", err)
	}
	err = s.eachRow(ctx, `SELECT id, name, semester FROM courses ORDER BY name, id`, func(row pgx.Row) error {
		var c model.Course
		if err := row.Scan(&c.ID, &c.Name, &c.Semester); err != nil {
			return err
		}
		fd.Courses = append(fd.Courses, c)
		return nil
	})
	if err != nil {
		return model.FormData{}, fmt.Errorf("list courses: %w", err)
	}
	return fd, nil
}

func (s *Store) eachRow(ctx context.Context, query string, fn func(pgx.Row) error, args ...any) error {
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func mapWriteError(op string, err error) error {
	switch {
	case isForeignKeyViolation(err):
		return model.ErrReferenceNotFound
	case isCheckViolation(err):
		return fmt.Errorf("%s: %w", op, model.ErrInvalidTime)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
