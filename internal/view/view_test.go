package view

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"raspored/internal/model"
	"raspored/internal/week"
)

var w42 = week.ISOWeek{Year: 2024, Week: 42}

func event(id int64, day time.Weekday, hour int, course string) model.Event {
	return model.Event{
		ID: id, Year: 2024, Week: 42, Day: day,
		Start: model.TimeOfDay{Hour: hour}, End: model.TimeOfDay{Hour: hour + 1},
		Course: course,
	}
}

func loaded() State {
	s := Reduce(Initial(w42), GoTo{Week: w42})
	return Reduce(s, Loaded{Week: w42, Events: []model.Event{
		event(2, time.Tuesday, 9, "Mreže"),
		event(1, time.Monday, 10, "Baze podataka"),
	}})
}

func TestReduce_LoadSortsAndReady(t *testing.T) {
	s := loaded()
	if s.Status != StatusReady {
		t.Fatalf("expected ready, got %v", s.Status)
	}
	if s.Events[0].ID != 1 || s.Events[1].ID != 2 {
		t.Fatalf("expected events ordered by day, got %+v", s.Events)
	}
}

func TestReduce_NavigateCrossesYear(t *testing.T) {
	s := Reduce(Initial(week.ISOWeek{Year: 2024, Week: 1}), Search{Query: "baze"})
	s = Reduce(s, Navigate{Delta: -1})
	if s.Week != (week.ISOWeek{Year: 2023, Week: 52}) {
		t.Fatalf("unexpected week %v", s.Week)
	}
	if s.Status != StatusLoading || s.Query != "baze" {
		t.Fatalf("expected loading with the query kept, got %+v", s)
	}

	s = Reduce(s, Navigate{Delta: 1})
	if s.Week != (week.ISOWeek{Year: 2024, Week: 1}) {
		t.Fatalf("expected to return to 2024-W01, got %v", s.Week)
	}
}

func TestReduce_NavigateFromInvalidWeek(t *testing.T) {
	s := Reduce(Initial(week.ISOWeek{Year: 2024, Week: 60}), Navigate{Delta: 1})
	if s.Status != StatusError || s.Err == "" {
		t.Fatalf("expected error state, got %+v", s)
	}
}

func TestReduce_StaleResultsIgnored(t *testing.T) {
	s := Reduce(Initial(w42), GoTo{Week: w42})
	s = Reduce(s, Navigate{Delta: 1})

	s = Reduce(s, Loaded{Week: w42, Events: []model.Event{event(1, time.Monday, 9, "x")}})
	if s.Status != StatusLoading || len(s.Events) != 0 {
		t.Fatalf("stale load must be ignored, got %+v", s)
	}
	s = Reduce(s, LoadFailed{Week: w42, Err: errors.New("boom")})
	if s.Status != StatusLoading {
		t.Fatalf("stale failure must be ignored, got %+v", s)
	}
	s = Reduce(s, LoadFailed{Week: s.Week, Err: errors.New("boom")})
	if s.Status != StatusError || s.Err != "boom" {
		t.Fatalf("expected error state, got %+v", s)
	}
}

func TestReduce_SelectionLifecycle(t *testing.T) {
	s := loaded()

	s = Reduce(s, Select{ID: 99})
	if _, ok := s.Selected(); ok {
		t.Fatalf("selecting an unknown event must be a no-op")
	}

	s = Reduce(s, Select{ID: 2})
	if ev, ok := s.Selected(); !ok || ev.Course != "Mreže" {
		t.Fatalf("expected event 2 selected, got %+v %v", ev, ok)
	}

	s = Reduce(s, EventDeleted{ID: 2})
	if _, ok := s.Selected(); ok || len(s.Events) != 1 {
		t.Fatalf("deleting the selected event must clear the selection, got %+v", s)
	}

	s = Reduce(s, Select{ID: 1})
	s = Reduce(s, ClearSelection{})
	if s.SelectedID != 0 {
		t.Fatalf("expected selection cleared")
	}
}

func TestReduce_EventSaved(t *testing.T) {
	s := loaded()

	s = Reduce(s, EventSaved{Event: event(3, time.Monday, 8, "Novi")})
	if len(s.Events) != 3 || s.Events[0].ID != 3 {
		t.Fatalf("expected new event first, got %+v", s.Events)
	}

	moved := event(1, time.Monday, 10, "Baze podataka")
	moved.Week = 43
	s = Reduce(s, Select{ID: 1})
	s = Reduce(s, EventSaved{Event: moved})
	if len(s.Events) != 2 || s.SelectedID != 0 {
		t.Fatalf("event moved to another week must leave this one, got %+v", s)
	}

	renamed := event(2, time.Tuesday, 9, "Računalne mreže")
	s = Reduce(s, EventSaved{Event: renamed})
	if len(s.Events) != 2 || s.Events[1].Course != "Računalne mreže" {
		t.Fatalf("expected in-place update, got %+v", s.Events)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := loaded()
	snapshot := State{
		Week:   before.Week,
		Events: append([]model.Event(nil), before.Events...),
		Status: before.Status,
	}

	actions := []Action{
		EventDeleted{ID: 1},
		EventSaved{Event: event(5, time.Friday, 12, "x")},
		Search{Query: "mreže"},
		Select{ID: 2},
		Navigate{Delta: 3},
	}
	for _, a := range actions {
		_ = Reduce(before, a)
	}
	if !reflect.DeepEqual(before.Events, snapshot.Events) || before.Query != "" || before.SelectedID != 0 || before.Week != snapshot.Week {
		t.Fatalf("Reduce mutated its input: %+v", before)
	}
}

func TestState_Visible(t *testing.T) {
	s := Reduce(loaded(), Search{Query: "BAZE"})
	got := s.Visible()
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected one match, got %+v", got)
	}
	if len(Reduce(s, Search{Query: ""}).Visible()) != 2 {
		t.Fatalf("empty query must show everything")
	}
}
