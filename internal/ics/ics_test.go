package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"raspored/internal/model"
	"raspored/internal/week"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var sample = calendar(
	"BEGIN:VEVENT",
	"UID:holiday-1",
	"DTSTAMP:20240101T000000Z",
	"DTSTART;VALUE=DATE:20241101",
	"DTEND;VALUE=DATE:20241102",
	"SUMMARY:Svi sveti",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:exam",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20241014T080000Z",
	"DTEND:20241014T100000Z",
	"RRULE:FREQ=DAILY;COUNT=5",
	"EXDATE:20241016T080000Z",
	"SUMMARY:Ispit",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:exam",
	"DTSTAMP:20240101T000000Z",
	"RECURRENCE-ID:20241017T080000Z",
	"DTSTART:20241017T120000Z",
	"DTEND:20241017T140000Z",
	"SUMMARY:Ispit (pomaknut)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20241015T080000Z",
	"SUMMARY:Bez UID-a",
	"END:VEVENT",
)

func TestParse(t *testing.T) {
	entries, err := Parse("feed", sample)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries (one without UID skipped), got %d", len(entries))
	}

	holiday := entries[0]
	if !holiday.AllDay || holiday.Start != time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected all-day entry %+v", holiday)
	}
	if !holiday.End.Equal(holiday.Start.AddDate(0, 0, 1)) {
		t.Fatalf("expected exclusive end one day later, got %v", holiday.End)
	}

	exam := entries[1]
	if exam.RRule == "" || len(exam.ExDates) != 1 || exam.RecurrenceID != nil {
		t.Fatalf("unexpected recurring entry %+v", exam)
	}
	if entries[2].RecurrenceID == nil {
		t.Fatalf("expected override to carry RECURRENCE-ID")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse("feed", []byte("  \n")); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestExpand_RecurrenceWithExdateAndOverride(t *testing.T) {
	entries, err := Parse("feed", sample)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	from := time.Date(2024, time.October, 14, 0, 0, 0, 0, time.UTC)
	got := Expand(entries, from, from.AddDate(0, 0, 7), time.UTC)

	var starts []string
	for _, o := range got {
		starts = append(starts, o.Start.Format("02 15:04")+" "+o.Summary)
	}
	want := []string{
		"14 08:00 Ispit",
		"15 08:00 Ispit",
		"17 12:00 Ispit (pomaknut)",
		"18 08:00 Ispit",
	}
	if strings.Join(starts, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected occurrences\n got: %v\nwant: %v", starts, want)
	}
}

func TestExpand_AllDayKeepsDateInDisplayZone(t *testing.T) {
	entries, err := Parse("feed", sample)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	zagreb, err := time.LoadLocation("Europe/Zagreb")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	monday, _ := week.ISOWeekToMonday(2024, 44)
	from := monday.In(zagreb)
	got := Expand(entries, from, from.AddDate(0, 0, 7), zagreb)
	if len(got) != 1 {
		t.Fatalf("expected only the holiday, got %+v", got)
	}
	o := got[0]
	if !o.AllDay || o.Start != time.Date(2024, time.November, 1, 0, 0, 0, 0, zagreb) {
		t.Fatalf("unexpected holiday %+v", o)
	}
	if !o.Covers(time.Date(2024, time.November, 1, 0, 0, 0, 0, zagreb)) || o.Covers(time.Date(2024, time.November, 2, 0, 0, 0, 0, zagreb)) {
		t.Fatalf("holiday must cover exactly November 1st")
	}
}

func TestExpand_EmptyWindow(t *testing.T) {
	now := time.Now()
	if got := Expand([]Entry{{UID: "x", Start: now, End: now.Add(time.Hour)}}, now, now, time.UTC); len(got) != 0 {
		t.Fatalf("expected nothing for an empty window, got %d", len(got))
	}
}

func TestFetcher_ConditionalAndFallback(t *testing.T) {
	var (
		requests atomic.Int32
		failing  atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sample)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	feed := Feed{ID: "praznici", URL: srv.URL + "/private/token.ics"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || !bytes.Equal(first.Body, sample) {
		t.Fatalf("expected fresh body on first fetch")
	}

	second, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || !bytes.Equal(second.Body, sample) {
		t.Fatalf("expected cached body after 304")
	}

	failing.Store(true)
	third, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("fetch with failing origin: %v", err)
	}
	if !third.FromCache {
		t.Fatalf("expected fallback to cached body")
	}
	if requests.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", requests.Load())
	}

	if _, err := NewFetcher(t.TempDir(), srv.Client()).Fetch(ctx, feed); err == nil {
		t.Fatalf("expected error without a cached copy")
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://calendar.example.com/u/123/private-abc.ics?token=x": "https://calendar.example.com/...(redacted)",
		"not a url": "(redacted)",
	}
	for in, want := range tests {
		if got := RedactURL(in); got != want {
			t.Fatalf("RedactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportWeek(t *testing.T) {
	wk := week.ISOWeek{Year: 2024, Week: 42}
	events := []model.Event{
		{
			ID: 1, Day: time.Wednesday,
			Start: model.TimeOfDay{Hour: 9, Minute: 30}, End: model.TimeOfDay{Hour: 11},
			Course: "Baze podataka", Form: "Predavanje", Room: "D-101", Teacher: "Ana Horvat", Group: "RI-1A",
		},
		{
			ID: 2, Day: time.Friday,
			Start: model.TimeOfDay{Hour: 14}, End: model.TimeOfDay{Hour: 16},
			Course: "Mreže",
		},
	}
	stamp := time.Date(2024, time.October, 10, 0, 0, 0, 0, time.UTC)

	out, err := ExportWeek(wk, events, time.UTC, stamp)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("exported calendar does not parse: %v", err)
	}
	got := cal.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	start, err := got[0].GetStartAt()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !start.Equal(time.Date(2024, time.October, 16, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if p := got[0].GetProperty(ical.ComponentPropertySummary); p == nil || p.Value != "Baze podataka (Predavanje)" {
		t.Fatalf("unexpected summary %+v", p)
	}

	if _, err := ExportWeek(week.ISOWeek{Year: 2024, Week: 60}, nil, time.UTC, stamp); err == nil {
		t.Fatalf("expected error for invalid week")
	}
}
