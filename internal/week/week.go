// Package week converts between calendar dates and ISO-8601 week numbers.
//
// Weeks start on Monday and week 1 of an ISO year is the week that contains
// the year's first Thursday (equivalently, January 4th). All functions are
// pure and safe for concurrent use.
package week

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISOWeek identifies a week by ISO year and week number.
type ISOWeek struct {
	Year int `json:"year" yaml:"year"`
	Week int `json:"week" yaml:"week"`
}

// InvalidWeekError reports a week number outside the range of its ISO year.
type InvalidWeekError struct {
	Year int
	Week int
	Max  int
}

func (e *InvalidWeekError) Error() string {
	return fmt.Sprintf("invalid ISO week %d of %d (valid range 1-%d)", e.Week, e.Year, e.Max)
}

// DateToISOWeek returns the ISO week containing d.
//
// d is moved to the Thursday of its week; that Thursday's calendar year is the
// ISO year, and the distance from the Thursday to the Monday of the week
// holding January 4th gives the week number.
func DateToISOWeek(d Date) ISOWeek {
	thursday := d.AddDays(3 - isoWeekday(d.Weekday()))
	jan4 := NewDate(thursday.Year, time.January, 4)
	offset := thursday.DaysSince(jan4) - 3 + isoWeekday(jan4.Weekday())
	return ISOWeek{Year: thursday.Year, Week: 1 + offset/7}
}

// WeeksInYear returns 52 or 53, the number of ISO weeks in isoYear.
func WeeksInYear(isoYear int) int {
	// December 28th always falls in the last ISO week of its year.
	return DateToISOWeek(NewDate(isoYear, time.December, 28)).Week
}

// ISOWeekToMonday returns the Monday that starts the given ISO week.
func ISOWeekToMonday(isoYear, week int) (Date, error) {
	if max := WeeksInYear(isoYear); week < 1 || week > max {
		return Date{}, &InvalidWeekError{Year: isoYear, Week: week, Max: max}
	}

	anchor := NewDate(isoYear, time.January, 1+(week-1)*7)
	dow := int(anchor.Weekday()) // Sunday=0 .. Saturday=6
	if dow <= int(time.Thursday) {
		return anchor.AddDays(1 - dow), nil
	}
	return anchor.AddDays(8 - dow), nil
}

// ShiftWeek moves delta weeks away from (isoYear, week). Navigation uses -1
// and +1; year boundaries are handled by going through the Monday date.
func ShiftWeek(isoYear, week, delta int) (ISOWeek, error) {
	monday, err := ISOWeekToMonday(isoYear, week)
	if err != nil {
		return ISOWeek{}, err
	}
	return DateToISOWeek(monday.AddDays(delta * 7)), nil
}

// Current returns the ISO week containing t (in t's location).
func Current(t time.Time) ISOWeek {
	return DateToISOWeek(DateOf(t))
}

// Validate reports whether w names an existing ISO week.
func (w ISOWeek) Validate() error {
	_, err := ISOWeekToMonday(w.Year, w.Week)
	return err
}

// Monday returns the first day of w.
func (w ISOWeek) Monday() (Date, error) {
	return ISOWeekToMonday(w.Year, w.Week)
}

// Days returns the first n days of w starting at Monday.
func (w ISOWeek) Days(n int) ([]Date, error) {
	monday, err := w.Monday()
	if err != nil {
		return nil, err
	}
	out := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, monday.AddDays(i))
	}
	return out, nil
}

// Shift is ShiftWeek on w.
func (w ISOWeek) Shift(delta int) (ISOWeek, error) {
	return ShiftWeek(w.Year, w.Week, delta)
}

func (w ISOWeek) Equal(other ISOWeek) bool {
	return w.Year == other.Year && w.Week == other.Week
}

func (w ISOWeek) Before(other ISOWeek) bool {
	if w.Year != other.Year {
		return w.Year < other.Year
	}
	return w.Week < other.Week
}

func (w ISOWeek) After(other ISOWeek) bool {
	return other.Before(w)
}

// String formats w as "2024-W42".
func (w ISOWeek) String() string {
	return fmt.Sprintf("%04d-W%02d", w.Year, w.Week)
}

// ParseISOWeek parses "2024-W42" (the "W" is optional) and validates the
// week number against its year.
func ParseISOWeek(s string) (ISOWeek, error) {
	yearPart, weekPart, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return ISOWeek{}, fmt.Errorf("invalid ISO week format: %q", s)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return ISOWeek{}, fmt.Errorf("invalid ISO week year: %w", err)
	}
	weekPart = strings.TrimPrefix(strings.ToUpper(weekPart), "W")
	wk, err := strconv.Atoi(weekPart)
	if err != nil {
		return ISOWeek{}, fmt.Errorf("invalid ISO week number: %w", err)
	}
	w := ISOWeek{Year: year, Week: wk}
	if err := w.Validate(); err != nil {
		return ISOWeek{}, err
	}
	return w, nil
}
