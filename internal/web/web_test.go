package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"raspored/internal/app"
	"raspored/internal/clock"
	"raspored/internal/config"
	"raspored/internal/layout"
	"raspored/internal/metrics"
	"raspored/internal/model"
	"raspored/internal/week"
)

var testNow = time.Date(2024, time.October, 16, 10, 0, 0, 0, time.UTC)

type memRepo struct {
	mu     sync.Mutex
	events map[int64]model.Event
	nextID int64
	listed week.ISOWeek

	teachers map[int64]model.Teacher
	changes  []model.EmailChange
}

func newMemRepo() *memRepo {
	r := &memRepo{
		events:   make(map[int64]model.Event),
		nextID:   1,
		teachers: map[int64]model.Teacher{1: {ID: 1, Name: "Ana Horvat", Email: "ana@example.hr"}},
	}
	r.add(model.Event{
		Year: 2024, Week: 42, Day: time.Monday,
		Start: model.TimeOfDay{Hour: 9, Minute: 30}, End: model.TimeOfDay{Hour: 11},
		CourseID: 1, Course: "Baze podataka", Form: "Predavanje",
		RoomID: 1, Room: "D-101", TeacherID: 1, Teacher: "Ana Horvat", GroupID: 1, Group: "RI-1A",
	})
	return r
}

func (r *memRepo) add(ev model.Event) model.Event {
	ev.ID = r.nextID
	r.nextID++
	r.events[ev.ID] = ev
	return ev
}

func (r *memRepo) ListEvents(_ context.Context, wk week.ISOWeek) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed = wk
	var out []model.Event
	for id := int64(1); id < r.nextID; id++ {
		if ev, ok := r.events[id]; ok && ev.Year == wk.Year && ev.Week == wk.Week {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memRepo) GetEvent(_ context.Context, id int64) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return model.Event{}, model.ErrEventNotFound
	}
	return ev, nil
}

func (r *memRepo) CreateEvent(_ context.Context, ev model.Event) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.CourseID > 10 {
		return model.Event{}, model.ErrReferenceNotFound
	}
	ev.Course = "Kolegij"
	return r.add(ev), nil
}

func (r *memRepo) UpdateEvent(_ context.Context, ev model.Event, _ time.Time) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.ID]; !ok {
		return model.Event{}, model.ErrEventNotFound
	}
	r.events[ev.ID] = ev
	return ev, nil
}

func (r *memRepo) DeleteEvent(_ context.Context, id int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return model.ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *memRepo) FormData(context.Context) (model.FormData, error) {
	return model.FormData{
		Groups:   []model.Group{{ID: 1, Name: "RI-1A"}},
		Teachers: []model.Teacher{r.teachers[1]},
		Rooms:    []model.Room{{ID: 1, Name: "D-101"}},
		Courses:  []model.Course{{ID: 1, Name: "Baze podataka", Semester: 3}},
	}, nil
}

func (r *memRepo) StudentSchedule(_ context.Context, jmbag string, _ *week.ISOWeek) ([]model.StudentScheduleRow, error) {
	if jmbag != "0036123456" {
		return nil, model.ErrStudentNotFound
	}
	return []model.StudentScheduleRow{{
		JMBAG: jmbag, Student: "Marko Marić", Year: 2024, Week: 42, Day: time.Monday,
		Start: model.TimeOfDay{Hour: 9, Minute: 30}, End: model.TimeOfDay{Hour: 11},
		Course: "Baze podataka", Room: "D-101", Teacher: "Ana Horvat",
	}}, nil
}

func (r *memRepo) TeacherCourses(context.Context) ([]model.TeacherCourseRow, error) {
	return []model.TeacherCourseRow{{Teacher: "Ana Horvat", Course: "Baze podataka", Semester: 3}}, nil
}

func (r *memRepo) EmailChanges(context.Context) ([]model.EmailChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.EmailChange(nil), r.changes...), nil
}

func (r *memRepo) EventHistory(context.Context) ([]model.HistoryEntry, error) {
	return nil, nil
}

func (r *memRepo) UpdateTeacherEmail(_ context.Context, id int64, email string, at time.Time) (model.Teacher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teachers[id]
	if !ok {
		return model.Teacher{}, model.ErrTeacherNotFound
	}
	r.changes = append(r.changes, model.EmailChange{TeacherID: id, Teacher: t.Name, OldEmail: t.Email, ChangedAt: at})
	t.Email = email
	r.teachers[id] = t
	return t, nil
}

type testEnv struct {
	srv     *Server
	repo    *memRepo
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.RateLimit = config.RateLimitConfig{Disabled: true}
	if mutate != nil {
		mutate(cfg)
	}

	repo := newMemRepo()
	clk := clock.NewFixed(testNow)
	m := metrics.New()
	schedule := app.NewScheduleService(repo, nil, layout.DefaultGrid(), clk)
	reports := app.NewReportService(repo, clk)
	srv, err := NewServer(cfg, schedule, reports, m, clk)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{srv: srv, repo: repo, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postForm(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

const validEvent = `{"year":2024,"week":42,"day":"tuesday","start":"10:00","end":"12:00",
	"course_id":1,"form":"Predavanje","room_id":1,"teacher_id":1,"group_id":1}`

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected caller's request id, got %q", got)
	}
}

func TestListEvents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/events?year=2024&week=42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Year   int      `json:"year"`
		Week   int      `json:"week"`
		Monday string   `json:"monday"`
		Days   []string `json:"days"`
		Events []struct {
			ID    int64  `json:"id"`
			Day   string `json:"day"`
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"events"`
		Overlays []json.RawMessage `json:"overlays"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Monday != "2024-10-14" || len(resp.Days) != 5 || resp.Days[4] != "2024-10-18" {
		t.Fatalf("unexpected days monday=%s days=%v", resp.Monday, resp.Days)
	}
	if len(resp.Events) != 1 || resp.Events[0].Day != "monday" || resp.Events[0].Start != "09:30" || resp.Events[0].End != "11:00" {
		t.Fatalf("unexpected events %+v", resp.Events)
	}
	if resp.Overlays == nil {
		t.Fatalf("overlays must be an empty array, not null")
	}
}

func TestListEvents_DefaultsToCurrentWeek(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.repo.listed != (week.ISOWeek{Year: 2024, Week: 42}) {
		t.Fatalf("expected current week 2024-W42, got %v", env.repo.listed)
	}
}

func TestListEvents_InitialWeekFromConfig(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.InitialWeek = "2025-W01" })

	env.do(t, http.MethodGet, "/api/events", "")
	if env.repo.listed != (week.ISOWeek{Year: 2025, Week: 1}) {
		t.Fatalf("expected pinned week, got %v", env.repo.listed)
	}
}

func TestListEvents_InvalidWeek(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	for _, target := range []string{
		"/api/events?year=2024&week=53",
		"/api/events?year=2024&week=0",
		"/api/events?year=abc&week=1",
		"/api/events?year=2024",
	} {
		rec := env.do(t, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != codeInvalidWeek {
			t.Fatalf("%s: expected %s, got %+v", target, codeInvalidWeek, resp)
		}
	}
}

func TestGetEvent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/api/events/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	tests := []struct {
		target string
		status int
		code   string
	}{
		{"/api/events/99", http.StatusNotFound, codeEventNotFound},
		{"/api/events/abc", http.StatusBadRequest, codeInvalidID},
		{"/api/events/-1", http.StatusBadRequest, codeInvalidID},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodGet, tt.target, "")
		if rec.Code != tt.status {
			t.Fatalf("%s: expected %d, got %d", tt.target, tt.status, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != tt.code {
			t.Fatalf("%s: expected %s, got %+v", tt.target, tt.code, resp)
		}
	}
}

func TestCreateEvent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/events", validEvent)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
		Event   struct {
			ID  int64  `json:"id"`
			Day string `json:"day"`
		} `json:"event"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Event.ID != 2 || resp.Event.Day != "tuesday" || resp.Message == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCreateEvent_Errors(t *testing.T) {
	t.Parallel()

	replace := func(old, new string) string { return strings.Replace(validEvent, old, new, 1) }
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"year":`, http.StatusBadRequest, codeInvalidBody},
		{"unknown field", `{"dan":"ponedjeljak"}`, http.StatusBadRequest, codeInvalidBody},
		{"saturday", replace(`"tuesday"`, `"saturday"`), http.StatusBadRequest, codeInvalidDay},
		{"bad time", replace(`"10:00"`, `"10h"`), http.StatusBadRequest, codeInvalidTime},
		{"week 53", replace(`"week":42`, `"week":53`), http.StatusBadRequest, codeInvalidWeek},
		{"end before start", replace(`"12:00"`, `"09:00"`), http.StatusBadRequest, codeInvalidDuration},
		{"before grid", replace(`"10:00"`, `"07:00"`), http.StatusBadRequest, codeOutOfRangeHour},
		{"missing room", replace(`"room_id":1`, `"room_id":0`), http.StatusBadRequest, codeInvalidID},
		{"blank form", replace(`"Predavanje"`, `""`), http.StatusBadRequest, codeInvalidForm},
		{"unknown course", replace(`"course_id":1`, `"course_id":99`), http.StatusBadRequest, codeReferenceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			rec := env.do(t, http.MethodPost, "/api/events", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Code != tt.code {
				t.Fatalf("expected %s, got %+v", tt.code, resp)
			}
		})
	}
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPut, "/api/events/1", validEvent); rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.repo.events[1].Day; got != time.Tuesday {
		t.Fatalf("expected event moved to tuesday, got %v", got)
	}
	if rec := env.do(t, http.MethodPut, "/api/events/77", validEvent); rec.Code != http.StatusNotFound {
		t.Fatalf("update missing: expected 404, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/events/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodDelete, "/api/events/1", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != codeEventNotFound {
		t.Fatalf("second delete must report event_not_found, got %d", rec.Code)
	}
}

func TestExportWeek(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/events.ics?year=2024&week=42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "Baze podataka") {
		t.Fatalf("unexpected calendar:\n%s", body)
	}
}

func TestFormData(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/form-data", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Groups []model.Group `json:"groups"`
		Forms  []string      `json:"forms"`
		Days   []dayOption   `json:"days"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Groups) != 1 || len(resp.Forms) != len(model.Forms) || len(resp.Days) != 5 {
		t.Fatalf("unexpected form data %+v", resp)
	}
	if resp.Days[0] != (dayOption{Value: "monday", Label: "Ponedjeljak"}) {
		t.Fatalf("unexpected first day %+v", resp.Days[0])
	}
}

func TestTeacherEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/teachers/1/email", `{"email":"nope"}`)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != codeInvalidEmail {
		t.Fatalf("expected invalid_email, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/api/teachers/9/email", `{"email":"x@example.hr"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown teacher, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/teachers/1/email", `{"email":"ana.horvat@example.hr"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/logs/teacher-email-changes", "")
	var changes []emailChangeDTO
	if err := json.NewDecoder(rec.Body).Decode(&changes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(changes) != 1 || changes[0].OldEmail != "ana@example.hr" || !changes[0].ChangedAt.Equal(testNow) {
		t.Fatalf("unexpected change log %+v", changes)
	}
}

func TestReports(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports/student-schedule/0036123456?year=2024&week=42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []studentRowDTO
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Day != "monday" || rows[0].Student != "Marko Marić" {
		t.Fatalf("unexpected rows %+v", rows)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/student-schedule/000", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != codeStudentNotFound {
		t.Fatalf("expected student_not_found, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/student-schedule/0036123456?year=2024&week=99", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad week filter, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/history/events", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestWeekPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/?year=2024&week=42&selected=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`data-ready="true"`, "Baze podataka (Predavanje)", `id="event-details"`, "top:30px;height:88px"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	rec = env.do(t, http.MethodGet, "/?year=2024&week=42&q=operacijski", "")
	if strings.Contains(rec.Body.String(), "Baze podataka (Predavanje)") {
		t.Fatalf("search must hide non-matching events")
	}

	rec = env.do(t, http.MethodGet, "/?year=2024&week=60", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `class="error"`) {
		t.Fatalf("expected an error page for week 60, got %d", rec.Code)
	}
}

func TestDeleteEventForm(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.postForm(t, "/events/1/delete", url.Values{"q": {"baze"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Događaj je obrisan.") {
		t.Fatalf("expected confirmation notice:\n%s", body)
	}
	if strings.Contains(body, `data-event-id="1"`) || strings.Contains(body, `id="event-details"`) {
		t.Fatalf("deleted event must leave the grid and the details panel")
	}
	if !strings.Contains(body, `value="baze"`) {
		t.Fatalf("expected the search to be kept")
	}
	if _, err := env.repo.GetEvent(context.Background(), 1); err == nil {
		t.Fatalf("expected event to be deleted")
	}

	rec = env.postForm(t, "/events/1/delete", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `id="flash"`) {
		t.Fatalf("expected 404 page with a notice, got %d", rec.Code)
	}
}

func TestMoveEventForm(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.postForm(t, "/events/1/move", url.Values{"day": {"tuesday"}, "start": {"10:00"}, "end": {"11:30"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"Događaj je premješten.", "top:0px;height:88px", `<option value="tuesday" selected>Utorak</option>`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	moved, err := env.repo.GetEvent(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if moved.Day != time.Tuesday || moved.Start != (model.TimeOfDay{Hour: 10}) || moved.CourseID != 1 || moved.Form != "Predavanje" {
		t.Fatalf("unexpected moved event %+v", moved)
	}

	rec = env.postForm(t, "/events/1/move", url.Values{"day": {"tuesday"}, "start": {"12:00"}, "end": {"11:00"}})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Premještanje nije uspjelo") {
		t.Fatalf("expected 400 with a notice, got %d", rec.Code)
	}
	if still, _ := env.repo.GetEvent(context.Background(), 1); still.Start != (model.TimeOfDay{Hour: 10}) {
		t.Fatalf("failed move must not change the event, got %+v", still)
	}
}

func TestReportsPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/reports?jmbag=0036123456", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Marko Marić") || !strings.Contains(body, "Nema podataka za prikaz.") {
		t.Fatalf("unexpected reports page:\n%s", body)
	}

	rec = env.do(t, http.MethodGet, "/reports?jmbag=111", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "nije pronađen") {
		t.Fatalf("expected a not-found message for an unknown student")
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 1}
	})

	if rec := env.do(t, http.MethodPost, "/api/events", validEvent); rec.Code != http.StatusCreated {
		t.Fatalf("first write: expected 201, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/events", validEvent)
	if rec.Code != http.StatusTooManyRequests || decodeError(t, rec).Code != codeRateLimited {
		t.Fatalf("second write: expected 429, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/events?year=2024&week=42", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rec.Code)
	}
}

func TestApplyConfig_DisablesRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 1}
	})

	if rec := env.do(t, http.MethodPost, "/api/events", validEvent); rec.Code != http.StatusCreated {
		t.Fatalf("first write: expected 201, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/events", validEvent); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: expected 429, got %d", rec.Code)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.RateLimit = config.RateLimitConfig{Disabled: true, PerSecond: 0.001, Burst: 1}
	if err := env.srv.ApplyConfig(cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodPost, "/api/events", validEvent); rec.Code != http.StatusCreated {
			t.Fatalf("write %d after disabling: expected 201, got %d", i, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.CORSOrigins = []string{"https://raspored.example.hr"} })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://raspored.example.hr")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://raspored.example.hr" {
		t.Fatalf("expected allowed preflight, got %d %v", rec.Code, rec.Header())
	}
	if rec := preflight("https://evil.example"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden preflight, got %d", rec.Code)
	}
}

func TestApplyConfig_WidensGrid(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	early := strings.Replace(validEvent, `"10:00"`, `"07:00"`, 1)

	if rec := env.do(t, http.MethodPost, "/api/events", early); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 07:00 to be rejected, got %d", rec.Code)
	}

	cfg := config.DefaultConfig()
	cfg.Grid.StartHour = 7
	cfg.RateLimit = config.RateLimitConfig{Disabled: true}
	if err := env.srv.ApplyConfig(cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}
	if rec := env.do(t, http.MethodPost, "/api/events", early); rec.Code != http.StatusCreated {
		t.Fatalf("expected 07:00 to fit after reload, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/api/nope", ""); rec.Code != http.StatusNotFound || decodeError(t, rec).Code != codeNotFound {
		t.Fatalf("expected JSON 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/events/1", "{}"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	env.do(t, http.MethodGet, "/api/events/1", "")
	env.do(t, http.MethodPost, "/api/events", validEvent)
	env.do(t, http.MethodGet, "/?year=2024&week=42", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{
		`route="/api/events/{id}"`,
		`raspored_event_mutations_total{op="create",result="ok"} 1`,
		"raspored_http_request_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
