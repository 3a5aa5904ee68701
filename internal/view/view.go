// Package view holds the state of the week page and the pure transitions
// between states. Reduce never mutates the state it is given, so a state
// may be shared between goroutines and kept as history.
package view

import (
	"sort"

	"raspored/internal/model"
	"raspored/internal/week"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

type State struct {
	Week       week.ISOWeek
	Events     []model.Event
	Overlays   []model.Overlay
	Query      string
	SelectedID int64
	Status     Status
	Err        string
}

// Action is one of the action types below.
type Action interface {
	isAction()
}

// GoTo opens a specific week and starts loading it.
type GoTo struct{ Week week.ISOWeek }

// Navigate moves Delta weeks from the current one.
type Navigate struct{ Delta int }

// Loaded delivers the events of Week. Results for a week that is no longer
// current are ignored.
type Loaded struct {
	Week     week.ISOWeek
	Events   []model.Event
	Overlays []model.Overlay
}

type LoadFailed struct {
	Week week.ISOWeek
	Err  error
}

type Search struct{ Query string }

type Select struct{ ID int64 }

type ClearSelection struct{}

type EventDeleted struct{ ID int64 }

// EventSaved reports a created or updated event.
type EventSaved struct{ Event model.Event }

func (GoTo) isAction()           {}
func (Navigate) isAction()       {}
func (Loaded) isAction()         {}
func (LoadFailed) isAction()     {}
func (Search) isAction()         {}
func (Select) isAction()         {}
func (ClearSelection) isAction() {}
func (EventDeleted) isAction()   {}
func (EventSaved) isAction()     {}

// Initial is the state before anything is loaded.
func Initial(wk week.ISOWeek) State {
	return State{Week: wk, Status: StatusIdle}
}

// Reduce returns the state that follows s after a.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case GoTo:
		return loading(s, a.Week)

	case Navigate:
		next, err := s.Week.Shift(a.Delta)
		if err != nil {
			s.Status = StatusError
			s.Err = err.Error()
			return s
		}
		return loading(s, next)

	case Loaded:
		if a.Week != s.Week {
			return s
		}
		s.Events = cloneEvents(a.Events)
		sortEvents(s.Events)
		s.Overlays = append([]model.Overlay(nil), a.Overlays...)
		s.Status = StatusReady
		s.Err = ""
		if _, ok := s.find(s.SelectedID); !ok {
			s.SelectedID = 0
		}
		return s

	case LoadFailed:
		if a.Week != s.Week {
			return s
		}
		s.Status = StatusError
		s.Err = "unknown error"
		if a.Err != nil {
			s.Err = a.Err.Error()
		}
		return s

	case Search:
		s.Query = a.Query
		return s

	case Select:
		if _, ok := s.find(a.ID); ok {
			s.SelectedID = a.ID
		}
		return s

	case ClearSelection:
		s.SelectedID = 0
		return s

	case EventDeleted:
		s.Events = without(s.Events, a.ID)
		if s.SelectedID == a.ID {
			s.SelectedID = 0
		}
		return s

	case EventSaved:
		ev := a.Event
		events := without(s.Events, ev.ID)
		if ev.Year == s.Week.Year && ev.Week == s.Week.Week {
			events = append(events, ev)
			sortEvents(events)
		} else if s.SelectedID == ev.ID {
			s.SelectedID = 0
		}
		s.Events = events
		return s
	}
	return s
}

func loading(s State, wk week.ISOWeek) State {
	return State{
		Week:   wk,
		Query:  s.Query,
		Status: StatusLoading,
	}
}

// Visible returns the events matching the search query.
func (s State) Visible() []model.Event {
	return model.Filter(s.Events, s.Query)
}

// Selected resolves the selected event.
func (s State) Selected() (model.Event, bool) {
	if s.SelectedID == 0 {
		return model.Event{}, false
	}
	return s.find(s.SelectedID)
}

func (s State) find(id int64) (model.Event, bool) {
	if id == 0 {
		return model.Event{}, false
	}
	for _, ev := range s.Events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

func cloneEvents(in []model.Event) []model.Event {
	return append([]model.Event(nil), in...)
}

// without returns a fresh slice of events minus id.
func without(events []model.Event, id int64) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID != id {
			out = append(out, ev)
		}
	}
	return out
}

func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Start != b.Start {
			return a.Start.Minutes() < b.Start.Minutes()
		}
		return a.ID < b.ID
	})
}
