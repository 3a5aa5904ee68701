package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"raspored/internal/model"
	"raspored/internal/week"
)

type studentRowDTO struct {
	JMBAG   string          `json:"jmbag"`
	Student string          `json:"student"`
	Year    int             `json:"year"`
	Week    int             `json:"week"`
	Day     string          `json:"day"`
	Start   model.TimeOfDay `json:"start"`
	End     model.TimeOfDay `json:"end"`
	Course  string          `json:"course"`
	Room    string          `json:"room"`
	Teacher string          `json:"teacher"`
}

type teacherCourseDTO struct {
	Teacher  string `json:"teacher"`
	Course   string `json:"course"`
	Semester int    `json:"semester"`
}

type emailChangeDTO struct {
	TeacherID int64     `json:"teacher_id"`
	Teacher   string    `json:"teacher"`
	OldEmail  string    `json:"old_email"`
	ChangedAt time.Time `json:"changed_at"`
}

type historyDTO struct {
	EventID    int64           `json:"event_id"`
	Course     string          `json:"course"`
	Year       int             `json:"year"`
	Week       int             `json:"week"`
	Day        string          `json:"day"`
	Start      model.TimeOfDay `json:"start"`
	End        model.TimeOfDay `json:"end"`
	Reason     string          `json:"reason"`
	ArchivedAt time.Time       `json:"archived_at"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type teacherResponse struct {
	Message string        `json:"message"`
	Teacher model.Teacher `json:"teacher"`
}

// GET /api/reports/student-schedule/{jmbag}?year=2024&week=42
func (s *Server) handleStudentSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var wk *week.ISOWeek
	if q.Get("year") != "" || q.Get("week") != "" {
		parsed, err := s.weekFromQuery(q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		wk = &parsed
	}

	rows, err := s.reports.StudentSchedule(r.Context(), chi.URLParam(r, "jmbag"), wk)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]studentRowDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, studentRowDTO{
			JMBAG:   row.JMBAG,
			Student: row.Student,
			Year:    row.Year,
			Week:    row.Week,
			Day:     model.DayName(row.Day),
			Start:   row.Start,
			End:     row.End,
			Course:  row.Course,
			Room:    row.Room,
			Teacher: row.Teacher,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTeacherCourses(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.TeacherCourses(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]teacherCourseDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, teacherCourseDTO(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEmailChanges(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.EmailChanges(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	loc := s.location()
	out := make([]emailChangeDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, emailChangeDTO{
			TeacherID: row.TeacherID,
			Teacher:   row.Teacher,
			OldEmail:  row.OldEmail,
			ChangedAt: row.ChangedAt.In(loc),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.EventHistory(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	loc := s.location()
	out := make([]historyDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, historyDTO{
			EventID:    row.EventID,
			Course:     row.Course,
			Year:       row.Year,
			Week:       row.Week,
			Day:        model.DayName(row.Day),
			Start:      row.Start,
			End:        row.End,
			Reason:     row.Reason,
			ArchivedAt: row.ArchivedAt.In(loc),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// PUT /api/teachers/{id}/email
func (s *Server) handleUpdateTeacherEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	teacher, err := s.reports.UpdateTeacherEmail(r.Context(), id, strings.TrimSpace(req.Email))
	s.countMutation("teacher_email", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teacherResponse{Message: "Email nastavnika je ažuriran.", Teacher: teacher})
}
