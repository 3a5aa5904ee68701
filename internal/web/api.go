package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"raspored/internal/app"
	"raspored/internal/ics"
	"raspored/internal/model"
	"raspored/internal/render"
	"raspored/internal/week"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type eventDTO struct {
	ID        int64           `json:"id"`
	Year      int             `json:"year"`
	Week      int             `json:"week"`
	Day       string          `json:"day"`
	Start     model.TimeOfDay `json:"start"`
	End       model.TimeOfDay `json:"end"`
	CourseID  int64           `json:"course_id"`
	Course    string          `json:"course"`
	Form      string          `json:"form"`
	RoomID    int64           `json:"room_id"`
	Room      string          `json:"room"`
	TeacherID int64           `json:"teacher_id"`
	Teacher   string          `json:"teacher"`
	GroupID   int64           `json:"group_id"`
	Group     string          `json:"group"`
}

func toEventDTO(ev model.Event) eventDTO {
	return eventDTO{
		ID:        ev.ID,
		Year:      ev.Year,
		Week:      ev.Week,
		Day:       model.DayName(ev.Day),
		Start:     ev.Start,
		End:       ev.End,
		CourseID:  ev.CourseID,
		Course:    ev.Course,
		Form:      ev.Form,
		RoomID:    ev.RoomID,
		Room:      ev.Room,
		TeacherID: ev.TeacherID,
		Teacher:   ev.Teacher,
		GroupID:   ev.GroupID,
		Group:     ev.Group,
	}
}

// overlayDTO is a JSON-friendly view of an overlay occurrence.
type overlayDTO struct {
	SourceID    string    `json:"source_id"`
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

type weekResponse struct {
	Year     int          `json:"year"`
	Week     int          `json:"week"`
	Monday   week.Date    `json:"monday"`
	Days     []week.Date  `json:"days"`
	Events   []eventDTO   `json:"events"`
	Overlays []overlayDTO `json:"overlays"`
	Query    string       `json:"q,omitempty"`
}

type eventRequest struct {
	Year      int    `json:"year"`
	Week      int    `json:"week"`
	Day       string `json:"day"`
	Start     string `json:"start"`
	End       string `json:"end"`
	CourseID  int64  `json:"course_id"`
	Form      string `json:"form"`
	RoomID    int64  `json:"room_id"`
	TeacherID int64  `json:"teacher_id"`
	GroupID   int64  `json:"group_id"`
}

func (req eventRequest) input() app.EventInput {
	return app.EventInput{
		Year:      req.Year,
		Week:      req.Week,
		Day:       req.Day,
		Start:     req.Start,
		End:       req.End,
		CourseID:  req.CourseID,
		Form:      req.Form,
		RoomID:    req.RoomID,
		TeacherID: req.TeacherID,
		GroupID:   req.GroupID,
	}
}

type eventResponse struct {
	Message string    `json:"message"`
	Event   *eventDTO `json:"event,omitempty"`
}

type dayOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type formDataResponse struct {
	model.FormData
	Forms []string    `json:"forms"`
	Days  []dayOption `json:"days"`
}

var errWeekParams = errors.New("year and week must both be integers")

// weekFromQuery reads year and week; both missing means the default week.
func (s *Server) weekFromQuery(q url.Values) (week.ISOWeek, error) {
	ys, ws := q.Get("year"), q.Get("week")
	if ys == "" && ws == "" {
		return s.schedule.DefaultWeek(), nil
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return week.ISOWeek{}, fmt.Errorf("%w: year %q", errWeekParams, ys)
	}
	wk, err := strconv.Atoi(ws)
	if err != nil {
		return week.ISOWeek{}, fmt.Errorf("%w: week %q", errWeekParams, ws)
	}
	w := week.ISOWeek{Year: year, Week: wk}
	return w, w.Validate()
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidID, chi.URLParam(r, name))
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
		return false
	}
	return true
}

// handleListEvents returns the events of one ISO week.
//
// GET /api/events?year=2024&week=42&q=baze
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wk, err := s.weekFromQuery(q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	wv, err := s.schedule.Week(r.Context(), wk, q.Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := weekResponse{
		Year:     wv.Week.Year,
		Week:     wv.Week.Week,
		Monday:   wv.Monday,
		Days:     wv.Days,
		Events:   make([]eventDTO, 0, len(wv.Events)),
		Overlays: make([]overlayDTO, 0, len(wv.Overlays)),
		Query:    wv.Query,
	}
	for _, ev := range wv.Events {
		resp.Events = append(resp.Events, toEventDTO(ev))
	}
	for _, o := range wv.Overlays {
		resp.Overlays = append(resp.Overlays, overlayDTO{
			SourceID:    o.SourceID,
			UID:         o.UID,
			InstanceKey: o.InstanceKey,
			Summary:     o.Summary,
			Location:    o.Location,
			AllDay:      o.AllDay,
			Start:       o.Start,
			End:         o.End,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	ev, err := s.schedule.Event(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.schedule.CreateEvent(r.Context(), req.input())
	s.countMutation("create", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	dto := toEventDTO(ev)
	writeJSON(w, http.StatusCreated, eventResponse{Message: "Događaj je uspješno dodan.", Event: &dto})
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.schedule.UpdateEvent(r.Context(), id, req.input())
	s.countMutation("update", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	dto := toEventDTO(ev)
	writeJSON(w, http.StatusOK, eventResponse{Message: "Događaj je uspješno ažuriran.", Event: &dto})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	err = s.schedule.DeleteEvent(r.Context(), id)
	s.countMutation("delete", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Message: "Događaj je uspješno obrisan."})
}

func (s *Server) countMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.EventMutations.WithLabelValues(op, result).Inc()
}

// handleExportWeek writes the week as an iCalendar document.
//
// GET /api/events.ics?year=2024&week=42
func (s *Server) handleExportWeek(w http.ResponseWriter, r *http.Request) {
	wk, err := s.weekFromQuery(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	wv, err := s.schedule.Week(r.Context(), wk, "")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	body, err := ics.ExportWeek(wk, wv.Events, s.location(), s.clock.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="raspored-%s.ics"`, wk))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleFormData(w http.ResponseWriter, r *http.Request) {
	fd, err := s.schedule.FormData(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := formDataResponse{FormData: fd, Forms: model.Forms}
	for _, d := range s.schedule.Grid().Days {
		resp.Days = append(resp.Days, dayOption{Value: model.DayName(d), Label: render.DayName(d)})
	}
	writeJSON(w, http.StatusOK, resp)
}
