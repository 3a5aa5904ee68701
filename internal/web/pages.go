package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"raspored/internal/app"
	appLog "raspored/internal/log"
	"raspored/internal/model"
	"raspored/internal/render"
	"raspored/internal/view"
	"raspored/internal/week"
)

// handleWeekPage renders the week grid. The page state is built by folding
// the request's navigation, search and selection through view.Reduce.
//
// GET /?year=2024&week=42&q=baze&selected=7
func (s *Server) handleWeekPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	wk, err := s.weekFromQuery(q)
	if err != nil {
		state, _ := s.loadWeekState(r.Context(), s.schedule.DefaultWeek(), q.Get("q"), err)
		s.renderWeek(w, r, state, http.StatusBadRequest, "")
		return
	}
	state, status := s.loadWeekState(r.Context(), wk, q.Get("q"), nil)
	if id, err := strconv.ParseInt(q.Get("selected"), 10, 64); err == nil {
		state = view.Reduce(state, view.Select{ID: id})
	}
	s.renderWeek(w, r, state, status, "")
}

// handleDeleteEventForm deletes an event from the details panel and renders
// its week without the event.
//
// POST /events/7/delete (q=baze)
func (s *Server) handleDeleteEventForm(w http.ResponseWriter, r *http.Request) {
	state, ev, ok := s.formEventState(w, r)
	if !ok {
		return
	}
	err := s.schedule.DeleteEvent(r.Context(), ev.ID)
	s.countMutation("delete", err)
	if err != nil {
		status, msg := formError(r, err)
		s.renderWeek(w, r, state, status, "Brisanje nije uspjelo: "+msg)
		return
	}
	state = view.Reduce(state, view.EventDeleted{ID: ev.ID})
	s.renderWeek(w, r, state, http.StatusOK, "Događaj je obrisan.")
}

// handleMoveEventForm changes an event's day and time from the details
// panel, keeping its course, room, teacher and group.
//
// POST /events/7/move (day=tuesday, start=10:00, end=11:30, q=baze)
func (s *Server) handleMoveEventForm(w http.ResponseWriter, r *http.Request) {
	state, ev, ok := s.formEventState(w, r)
	if !ok {
		return
	}
	in := app.EventInput{
		Year:      ev.Year,
		Week:      ev.Week,
		Day:       r.PostForm.Get("day"),
		Start:     r.PostForm.Get("start"),
		End:       r.PostForm.Get("end"),
		CourseID:  ev.CourseID,
		Form:      ev.Form,
		RoomID:    ev.RoomID,
		TeacherID: ev.TeacherID,
		GroupID:   ev.GroupID,
	}
	saved, err := s.schedule.UpdateEvent(r.Context(), ev.ID, in)
	s.countMutation("update", err)
	if err != nil {
		status, msg := formError(r, err)
		s.renderWeek(w, r, state, status, "Premještanje nije uspjelo: "+msg)
		return
	}
	state = view.Reduce(state, view.EventSaved{Event: saved})
	s.renderWeek(w, r, state, http.StatusOK, "Događaj je premješten.")
}

// formEventState parses a details-panel form and loads the week of the
// event it names, with that event selected. On failure the response has
// been written.
func (s *Server) formEventState(w http.ResponseWriter, r *http.Request) (view.State, model.Event, bool) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		state, _ := s.loadWeekState(ctx, s.schedule.DefaultWeek(), "", nil)
		s.renderWeek(w, r, state, http.StatusBadRequest, "Neispravan zahtjev.")
		return view.State{}, model.Event{}, false
	}
	query := r.PostForm.Get("q")

	id, err := pathID(r, "id")
	if err == nil {
		var ev model.Event
		if ev, err = s.schedule.Event(ctx, id); err == nil {
			wk := week.ISOWeek{Year: ev.Year, Week: ev.Week}
			state, status := s.loadWeekState(ctx, wk, query, nil)
			if status != http.StatusOK {
				s.renderWeek(w, r, state, status, "")
				return view.State{}, model.Event{}, false
			}
			return view.Reduce(state, view.Select{ID: id}), ev, true
		}
	}
	status, msg := formError(r, err)
	state, _ := s.loadWeekState(ctx, s.schedule.DefaultWeek(), query, nil)
	s.renderWeek(w, r, state, status, msg)
	return view.State{}, model.Event{}, false
}

// loadWeekState folds a search and a load of wk into a fresh state. A
// non-nil pre error short-circuits the load and is reported as the failure.
func (s *Server) loadWeekState(ctx context.Context, wk week.ISOWeek, query string, pre error) (view.State, int) {
	state := view.Initial(wk)
	state = view.Reduce(state, view.Search{Query: strings.TrimSpace(query)})
	state = view.Reduce(state, view.GoTo{Week: wk})
	if pre != nil {
		return view.Reduce(state, view.LoadFailed{Week: wk, Err: pre}), http.StatusBadRequest
	}
	wv, err := s.schedule.Week(ctx, wk, "")
	if err != nil {
		status, _ := errorStatus(err)
		if status == http.StatusInternalServerError {
			appLog.Error("week page load failed", err, "week", wk.String(), "request_id", requestIDFrom(ctx))
		}
		return view.Reduce(state, view.LoadFailed{Week: wk, Err: err}), status
	}
	return view.Reduce(state, view.Loaded{Week: wk, Events: wv.Events, Overlays: wv.Overlays}), http.StatusOK
}

func (s *Server) renderWeek(w http.ResponseWriter, r *http.Request, state view.State, status int, notice string) {
	var buf bytes.Buffer
	res, err := s.renderer.Week(&buf, render.WeekPage{
		State:    state,
		Grid:     s.schedule.Grid(),
		Location: s.location(),
		Notice:   notice,
	})
	if err != nil {
		appLog.Error("week page render failed", err, "request_id", requestIDFrom(r.Context()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if n := len(res.Dropped); n > 0 {
		s.metrics.LayoutDropped.Add(float64(n))
		appLog.Debug("events outside the grid", "week", state.Week.String(), "count", n)
	}
	writeHTML(w, status, buf.Bytes())
}

// formError maps a service error to a status and a message fit for the page.
func formError(r *http.Request, err error) (int, string) {
	status, _ := errorStatus(err)
	if status == http.StatusInternalServerError {
		appLog.Error("page form failed", err, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
		return status, "Greška na poslužitelju."
	}
	return status, err.Error()
}

// handleReportsPage renders every report table.
//
// GET /reports?jmbag=0036123456
func (s *Server) handleReportsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := render.ReportsPage{
		JMBAG:    strings.TrimSpace(r.URL.Query().Get("jmbag")),
		Location: s.location(),
	}

	if page.JMBAG != "" {
		rows, err := s.reports.StudentSchedule(ctx, page.JMBAG, nil)
		switch {
		case errors.Is(err, model.ErrStudentNotFound):
			page.StudentErr = "Student s tim JMBAG-om nije pronađen."
		case err != nil:
			s.reportPageError(w, r, err)
			return
		default:
			page.Student = rows
		}
	}

	var err error
	if page.TeacherCourses, err = s.reports.TeacherCourses(ctx); err != nil {
		s.reportPageError(w, r, err)
		return
	}
	if page.EmailChanges, err = s.reports.EmailChanges(ctx); err != nil {
		s.reportPageError(w, r, err)
		return
	}
	if page.History, err = s.reports.EventHistory(ctx); err != nil {
		s.reportPageError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Reports(&buf, page); err != nil {
		s.reportPageError(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

func (s *Server) reportPageError(w http.ResponseWriter, r *http.Request, err error) {
	appLog.Error("reports page failed", err, "request_id", requestIDFrom(r.Context()))
	http.Error(w, "Greška pri dohvaćanju.", http.StatusInternalServerError)
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
