package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"raspored/internal/model"
	"raspored/internal/week"
)

const productID = "-//raspored//schedule export//HR"

// ExportWeek renders the events of wk as an iCalendar document. Wall-clock
// times are interpreted in loc. stamp becomes every event's DTSTAMP.
func ExportWeek(wk week.ISOWeek, events []model.Event, loc *time.Location, stamp time.Time) (string, error) {
	monday, err := wk.Monday()
	if err != nil {
		return "", err
	}
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		day := monday.AddDays(int(ev.Day) - int(time.Monday))
		start := time.Date(day.Year, day.Month, day.Day, ev.Start.Hour, ev.Start.Minute, 0, 0, loc)
		end := time.Date(day.Year, day.Month, day.Day, ev.End.Hour, ev.End.Minute, 0, 0, loc)

		ve := cal.AddEvent(fmt.Sprintf("event-%d-%s@raspored", ev.ID, wk))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(start)
		ve.SetEndAt(end)
		ve.SetSummary(summary(ev))
		if ev.Room != "" {
			ve.SetLocation(ev.Room)
		}
		ve.SetDescription(description(ev))
	}
	return cal.Serialize(), nil
}

func summary(ev model.Event) string {
	if ev.Form == "" {
		return ev.Course
	}
	return ev.Course + " (" + ev.Form + ")"
}

func description(ev model.Event) string {
	var parts []string
	if ev.Teacher != "" {
		parts = append(parts, "Nastavnik: "+ev.Teacher)
	}
	if ev.Group != "" {
		parts = append(parts, "Grupa: "+ev.Group)
	}
	return strings.Join(parts, "\n")
}
