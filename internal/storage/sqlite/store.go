// Package sqlite stores the schedule in a single SQLite file (pure Go driver).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"raspored/internal/model"
	"raspored/internal/week"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	pragmas := url.Values{}
	pragmas.Add("_pragma", "foreign_keys(1)")
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "synchronous(NORMAL)")
	if busyTimeout > 0 {
		pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	}

	db, err := sql.Open("sqlite", path+"?"+pragmas.Encode())
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
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

func scanEvent(row scanner) (model.Event, error) {
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
WHERE e.iso_year = ? AND e.iso_week = ?
ORDER BY e.day, e.start_min, e.end_min, e.id`
	events := []model.Event{}
	err := s.eachRow(ctx, query, func(row scanner) error {
		ev, err := scanEvent(row)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	}, wk.Year, wk.Week)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	const query = eventColumns + `
WHERE e.id = ?`
	ev, err := scanEvent(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, model.ErrEventNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	var created model.Event
	err := s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.q(ctx).ExecContext(ctx, `
INSERT INTO events (iso_year, iso_week, day, start_min, end_min, course_id, form, room_id, teacher_id, group_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.Year, ev.Week, int(ev.Day), ev.Start.Minutes(), ev.End.Minutes(),
			ev.CourseID, ev.Form, ev.RoomID, ev.TeacherID, ev.GroupID,
		)
		if err != nil {
			return mapWriteError("create event", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("create event: %w", err)
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
	err := s.withTx(ctx, func(ctx context.Context) error {
		if err := s.archiveEvent(ctx, ev.ID, model.HistoryReasonUpdate, archivedAt); err != nil {
			return err
		}
		_, err := s.q(ctx).ExecContext(ctx, `
UPDATE events
SET iso_year = ?, iso_week = ?, day = ?, start_min = ?, end_min = ?,
    course_id = ?, form = ?, room_id = ?, teacher_id = ?, group_id = ?
WHERE id = ?`,
			ev.Year, ev.Week, int(ev.Day), ev.Start.Minutes(), ev.End.Minutes(),
			ev.CourseID, ev.Form, ev.RoomID, ev.TeacherID, ev.GroupID, ev.ID,
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
	return s.withTx(ctx, func(ctx context.Context) error {
		if err := s.archiveEvent(ctx, id, model.HistoryReasonDelete, archivedAt); err != nil {
			return err
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
}

func (s *Store) archiveEvent(ctx context.Context, id int64, reason string, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
INSERT INTO event_history (event_id, iso_year, iso_week, day, start_min, end_min,
                           course_id, form, room_id, teacher_id, group_id, reason, archived_at)
SELECT id, iso_year, iso_week, day, start_min, end_min,
       course_id, form, room_id, teacher_id, group_id, ?, ?
FROM events
WHERE id = ?`, reason, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("archive event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive event: %w", err)
	}
	if n == 0 {
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
	err := s.eachRow(ctx, `SELECT id, name FROM student_groups ORDER BY name, id`, func(row scanner) error {
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
	err = s.eachRow(ctx, `SELECT id, name, email FROM teachers ORDER BY name, id`, func(row scanner) error {
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
	err = s.eachRow(ctx, `SELECT id, name FROM rooms ORDER BY name, id`, func(row scanner) error {
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
	err = s.eachRow(ctx, `SELECT id, name, semester FROM courses ORDER BY name, id`, func(row scanner) error {
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

func (s *Store) eachRow(ctx context.Context, query string, fn func(scanner) error, args ...any) error {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
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
