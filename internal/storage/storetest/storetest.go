// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"raspored/internal/app"
	"raspored/internal/model"
	"raspored/internal/testutil"
	"raspored/internal/week"
)

type Store interface {
	app.EventRepository
	app.ReportRepository
	Seed(ctx context.Context, fx model.Fixture) error
}

// Run exercises a freshly migrated, empty store returned by open. open is
// called once per subtest.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("CreateListGet", func(t *testing.T) { testCreateListGet(t, open(t)) })
	t.Run("UnknownReference", func(t *testing.T) { testUnknownReference(t, open(t)) })
	t.Run("UpdateArchivesPrevious", func(t *testing.T) { testUpdateArchives(t, open(t)) })
	t.Run("DeleteArchives", func(t *testing.T) { testDeleteArchives(t, open(t)) })
	t.Run("TeacherEmailLog", func(t *testing.T) { testTeacherEmail(t, open(t)) })
	t.Run("Reports", func(t *testing.T) { testReports(t, open(t)) })
	t.Run("FormData", func(t *testing.T) { testFormData(t, open(t)) })
}

func seeded(t *testing.T, s Store) context.Context {
	t.Helper()
	ctx := context.Background()
	if err := s.Seed(ctx, testutil.Fixture()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Seeding twice must be harmless.
	if err := s.Seed(ctx, testutil.Fixture()); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	return ctx
}

func event(year, wk int, day time.Weekday, start, end int) model.Event {
	return model.Event{
		Year:      year,
		Week:      wk,
		Day:       day,
		Start:     model.TimeFromMinutes(start),
		End:       model.TimeFromMinutes(end),
		CourseID:  1,
		Form:      "Predavanje",
		RoomID:    1,
		TeacherID: 1,
		GroupID:   1,
	}
}

func testCreateListGet(t *testing.T, s Store) {
	ctx := seeded(t, s)

	later, err := s.CreateEvent(ctx, event(2024, 42, time.Monday, 12*60, 14*60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	earlier, err := s.CreateEvent(ctx, event(2024, 42, time.Monday, 9*60+30, 10*60+15))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateEvent(ctx, event(2024, 43, time.Monday, 9*60, 10*60)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if earlier.ID == 0 || earlier.Course != "Baze podataka" || earlier.Room != "D-101" || earlier.Group != "RI-1A" {
		t.Fatalf("expected joined names on created event, got %+v", earlier)
	}

	events, err := s.ListEvents(ctx, week.ISOWeek{Year: 2024, Week: 42})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in week 42, got %d", len(events))
	}
	if events[0].ID != earlier.ID || events[1].ID != later.ID {
		t.Fatalf("expected events ordered by start, got %d, %d", events[0].ID, events[1].ID)
	}
	if events[0].Start != (model.TimeOfDay{Hour: 9, Minute: 30}) || events[0].Day != time.Monday {
		t.Fatalf("unexpected stored times %+v", events[0])
	}

	got, err := s.GetEvent(ctx, later.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Teacher != "Ana Horvat" || got.End != (model.TimeOfDay{Hour: 14}) {
		t.Fatalf("unexpected event %+v", got)
	}

	if _, err := s.GetEvent(ctx, 9999); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	empty, err := s.ListEvents(ctx, week.ISOWeek{Year: 2025, Week: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected an empty non-nil slice, got %#v", empty)
	}
}

func testUnknownReference(t *testing.T, s Store) {
	ctx := seeded(t, s)

	ev := event(2024, 42, time.Tuesday, 9*60, 10*60)
	ev.RoomID = 77
	if _, err := s.CreateEvent(ctx, ev); !errors.Is(err, model.ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
}

func testUpdateArchives(t *testing.T, s Store) {
	ctx := seeded(t, s)
	at := time.Date(2024, time.October, 16, 10, 0, 0, 0, time.UTC)

	created, err := s.CreateEvent(ctx, event(2024, 42, time.Monday, 9*60, 10*60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	changed := created
	changed.Day = time.Thursday
	changed.RoomID = 2
	changed.CourseID = 2
	updated, err := s.UpdateEvent(ctx, changed, at)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Day != time.Thursday || updated.Room != "Lab 3" || updated.Course != "Operacijski sustavi" {
		t.Fatalf("unexpected updated event %+v", updated)
	}

	history, err := s.EventHistory(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	h := history[0]
	if h.EventID != created.ID || h.Reason != model.HistoryReasonUpdate || h.Day != time.Monday || h.Course != "Baze podataka" {
		t.Fatalf("history must hold the previous version, got %+v", h)
	}
	if !h.ArchivedAt.Equal(at) {
		t.Fatalf("expected archived at %v, got %v", at, h.ArchivedAt)
	}

	missing := changed
	missing.ID = 9999
	if _, err := s.UpdateEvent(ctx, missing, at); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	bad := changed
	bad.TeacherID = 99
	if _, err := s.UpdateEvent(ctx, bad, at); !errors.Is(err, model.ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
	history, err = s.EventHistory(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("failed updates must not leave history behind, got %d entries", len(history))
	}
}

func testDeleteArchives(t *testing.T, s Store) {
	ctx := seeded(t, s)
	at := time.Date(2024, time.October, 17, 10, 0, 0, 0, time.UTC)

	created, err := s.CreateEvent(ctx, event(2024, 42, time.Friday, 15*60, 16*60+30))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteEvent(ctx, created.ID, at); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetEvent(ctx, created.ID); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected deleted event to be gone, got %v", err)
	}
	if err := s.DeleteEvent(ctx, created.ID, at); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound on second delete, got %v", err)
	}

	history, err := s.EventHistory(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Reason != model.HistoryReasonDelete {
		t.Fatalf("expected one delete entry, got %+v", history)
	}
	if history[0].End != (model.TimeOfDay{Hour: 16, Minute: 30}) {
		t.Fatalf("unexpected archived end %v", history[0].End)
	}
}

func testTeacherEmail(t *testing.T, s Store) {
	ctx := seeded(t, s)
	at := time.Date(2024, time.October, 18, 9, 0, 0, 0, time.UTC)

	teacher, err := s.UpdateTeacherEmail(ctx, 2, "ikovac@example.hr", at)
	if err != nil {
		t.Fatalf("update email: %v", err)
	}
	if teacher.Email != "ikovac@example.hr" || teacher.Name != "Ivan Kovač" {
		t.Fatalf("unexpected teacher %+v", teacher)
	}
	if _, err := s.UpdateTeacherEmail(ctx, 2, "ikovac@example.hr", at.Add(time.Hour)); err != nil {
		t.Fatalf("repeat update: %v", err)
	}

	changes, err := s.EmailChanges(ctx)
	if err != nil {
		t.Fatalf("email changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one logged change, got %d", len(changes))
	}
	if changes[0].OldEmail != "ivan.kovac@example.hr" || changes[0].Teacher != "Ivan Kovač" || !changes[0].ChangedAt.Equal(at) {
		t.Fatalf("unexpected change %+v", changes[0])
	}

	if _, err := s.UpdateTeacherEmail(ctx, 99, "x@example.hr", at); !errors.Is(err, model.ErrTeacherNotFound) {
		t.Fatalf("expected ErrTeacherNotFound, got %v", err)
	}
}

func testReports(t *testing.T, s Store) {
	ctx := seeded(t, s)

	for _, ev := range []model.Event{
		event(2024, 42, time.Monday, 9*60, 10*60),
		event(2024, 43, time.Tuesday, 11*60, 12*60),
	} {
		if _, err := s.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := event(2024, 42, time.Wednesday, 9*60, 10*60)
	other.GroupID = 2
	other.TeacherID = 2
	other.CourseID = 2
	if _, err := s.CreateEvent(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, err := s.StudentSchedule(ctx, "0036123456", nil)
	if err != nil {
		t.Fatalf("student schedule: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected the student's two classes, got %d", len(rows))
	}
	if rows[0].Week != 42 || rows[0].Student != "Marko Marić" || rows[0].Teacher != "Ana Horvat" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}

	wk := week.ISOWeek{Year: 2024, Week: 43}
	rows, err = s.StudentSchedule(ctx, "0036123456", &wk)
	if err != nil {
		t.Fatalf("student schedule: %v", err)
	}
	if len(rows) != 1 || rows[0].Day != time.Tuesday {
		t.Fatalf("expected the week 43 class only, got %+v", rows)
	}

	if _, err := s.StudentSchedule(ctx, "0000000000", nil); !errors.Is(err, model.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}

	courses, err := s.TeacherCourses(ctx)
	if err != nil {
		t.Fatalf("teacher courses: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("expected 2 distinct teacher/course pairs, got %+v", courses)
	}
	if courses[0].Teacher != "Ana Horvat" || courses[0].Semester != 3 {
		t.Fatalf("unexpected first pair %+v", courses[0])
	}
}

func testFormData(t *testing.T, s Store) {
	ctx := seeded(t, s)

	fd, err := s.FormData(ctx)
	if err != nil {
		t.Fatalf("form data: %v", err)
	}
	if len(fd.Groups) != 2 || len(fd.Teachers) != 2 || len(fd.Rooms) != 2 || len(fd.Courses) != 2 {
		t.Fatalf("unexpected form data %+v", fd)
	}
	if fd.Courses[0].Name != "Baze podataka" || fd.Teachers[1].Email != "ivan.kovac@example.hr" {
		t.Fatalf("expected lists ordered by name, got %+v", fd)
	}
}
