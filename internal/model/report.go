package model

import "time"

// StudentScheduleRow is one class in a student's schedule.
type StudentScheduleRow struct {
	JMBAG   string
	Student string
	Year    int
	Week    int
	Day     time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
	Course  string
	Room    string
	Teacher string
}

// TeacherCourseRow pairs a teacher with a course they teach.
type TeacherCourseRow struct {
	Teacher  string
	Course   string
	Semester int
}

// EmailChange records a teacher's previous email address.
type EmailChange struct {
	TeacherID int64
	Teacher   string
	OldEmail  string
	ChangedAt time.Time
}

// HistoryEntry is an archived version of an event, written when the event
// was updated or deleted.
type HistoryEntry struct {
	EventID    int64
	Course     string
	Year       int
	Week       int
	Day        time.Weekday
	Start      TimeOfDay
	End        TimeOfDay
	Reason     string // "update" or "delete"
	ArchivedAt time.Time
}

const (
	HistoryReasonUpdate = "update"
	HistoryReasonDelete = "delete"
)
