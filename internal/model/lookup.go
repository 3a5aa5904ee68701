package model

import (
	"fmt"
	"strings"
	"time"
)

type Group struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Teacher struct {
	ID    int64  `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

type Room struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Course struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Semester int    `json:"semester" yaml:"semester"`
}

type Student struct {
	ID      int64  `json:"id" yaml:"id"`
	JMBAG   string `json:"jmbag" yaml:"jmbag"`
	Name    string `json:"name" yaml:"name"`
	GroupID int64  `json:"group_id" yaml:"group_id"`
}

// Forms lists the accepted forms of teaching.
var Forms = []string{"Predavanje", "Auditorne vježbe", "Laboratorijske vježbe", "Seminar"}

// Weekdays are the schedulable days, Monday through Friday.
var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// ParseWeekday accepts an English day name ("monday", "Mon") or an ISO day
// number 1-5.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, wd := range Weekdays {
		name := strings.ToLower(wd.String())
		if s == name || s == name[:3] || s == fmt.Sprint(int(wd)) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDay, s)
}

// IsWeekday reports whether wd is Monday..Friday.
func IsWeekday(wd time.Weekday) bool {
	return wd >= time.Monday && wd <= time.Friday
}

// DayName returns the lower-case English name used in the API.
func DayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// FormData feeds the dropdowns of the event form.
type FormData struct {
	Groups   []Group   `json:"groups"`
	Teachers []Teacher `json:"teachers"`
	Rooms    []Room    `json:"rooms"`
	Courses  []Course  `json:"courses"`
}

// Fixture is the seed data format loaded from YAML.
type Fixture struct {
	Groups   []Group   `yaml:"groups"`
	Teachers []Teacher `yaml:"teachers"`
	Rooms    []Room    `yaml:"rooms"`
	Courses  []Course  `yaml:"courses"`
	Students []Student `yaml:"students"`
}
