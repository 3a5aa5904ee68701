package app

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"raspored/internal/clock"
	"raspored/internal/model"
	"raspored/internal/week"
)

type ReportRepository interface {
	StudentSchedule(ctx context.Context, jmbag string, wk *week.ISOWeek) ([]model.StudentScheduleRow, error)
	TeacherCourses(ctx context.Context) ([]model.TeacherCourseRow, error)
	EmailChanges(ctx context.Context) ([]model.EmailChange, error)
	EventHistory(ctx context.Context) ([]model.HistoryEntry, error)
	UpdateTeacherEmail(ctx context.Context, teacherID int64, email string, changedAt time.Time) (model.Teacher, error)
}

type ReportService struct {
	repo  ReportRepository
	clock clock.Clock
}

func NewReportService(repo ReportRepository, clk clock.Clock) *ReportService {
	return &ReportService{
		repo:  repo,
		clock: clk,
	}
}

// StudentSchedule lists the classes of the student's group, for one week if
// wk is set.
func (s *ReportService) StudentSchedule(ctx context.Context, jmbag string, wk *week.ISOWeek) ([]model.StudentScheduleRow, error) {
	jmbag = strings.TrimSpace(jmbag)
	if jmbag == "" {
		return nil, model.ErrJMBAGRequired
	}
	if wk != nil {
		if err := wk.Validate(); err != nil {
			return nil, err
		}
	}
	return s.repo.StudentSchedule(ctx, jmbag, wk)
}

func (s *ReportService) TeacherCourses(ctx context.Context) ([]model.TeacherCourseRow, error) {
	return s.repo.TeacherCourses(ctx)
}

func (s *ReportService) EmailChanges(ctx context.Context) ([]model.EmailChange, error) {
	return s.repo.EmailChanges(ctx)
}

func (s *ReportService) EventHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	return s.repo.EventHistory(ctx)
}

// UpdateTeacherEmail changes a teacher's email; the previous address is kept
// in the change log.
func (s *ReportService) UpdateTeacherEmail(ctx context.Context, teacherID int64, email string) (model.Teacher, error) {
	if teacherID <= 0 {
		return model.Teacher{}, model.ErrInvalidID
	}
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.Teacher{}, model.ErrInvalidEmail
	}
	return s.repo.UpdateTeacherEmail(ctx, teacherID, email, s.clock.Now())
}
