package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a day, minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a leading zero is optional).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	t := TimeOfDay{Hour: hour, Minute: minute}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// TimeFromMinutes builds a TimeOfDay from minutes since midnight.
func TimeFromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// Valid reports whether t is between 00:00 and 24:00 inclusive.
func (t TimeOfDay) Valid() bool {
	if t.Hour == 24 {
		return t.Minute == 0
	}
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event is a single scheduled class in a given ISO week.
type Event struct {
	ID int64

	// ISO year and week the event belongs to.
	Year int
	Week int

	Day   time.Weekday
	Start TimeOfDay
	End   TimeOfDay

	CourseID  int64
	Course    string
	Form      string // lecture, exercise, lab...
	RoomID    int64
	Room      string
	TeacherID int64
	Teacher   string
	GroupID   int64
	Group     string
}

// DurationMinutes returns End - Start in minutes; not positive for invalid spans.
func (e Event) DurationMinutes() int {
	return e.End.Minutes() - e.Start.Minutes()
}

// Matches reports whether term occurs (case-insensitively) in the course,
// teacher, room or group name. An empty term matches every event.
func (e Event) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	text := strings.ToLower(strings.Join([]string{e.Course, e.Teacher, e.Room, e.Group}, " "))
	return strings.Contains(text, term)
}

// Filter returns the events matching term, preserving order.
func Filter(events []Event, term string) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Matches(term) {
			out = append(out, ev)
		}
	}
	return out
}

// Overlay is a concrete occurrence from an external ICS feed (holidays, exam
// periods) after recurrence expansion and timezone normalization.
type Overlay struct {
	SourceID string
	UID      string

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// entry, derived from the local start time.
	InstanceKey string

	Summary  string
	Location string
	AllDay   bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// Covers reports whether the overlay intersects the day starting at dayStart.
func (o Overlay) Covers(dayStart time.Time) bool {
	dayEnd := dayStart.AddDate(0, 0, 1)
	return o.Start.Before(dayEnd) && o.End.After(dayStart)
}
