package app

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"raspored/internal/clock"
	"raspored/internal/layout"
	"raspored/internal/model"
	"raspored/internal/week"
)

type EventRepository interface {
	ListEvents(ctx context.Context, wk week.ISOWeek) ([]model.Event, error)
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	CreateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, ev model.Event, archivedAt time.Time) (model.Event, error)
	DeleteEvent(ctx context.Context, id int64, archivedAt time.Time) error
	FormData(ctx context.Context) (model.FormData, error)
}

// OverlaySource supplies external calendar entries for a week.
type OverlaySource interface {
	ForWeek(ctx context.Context, wk week.ISOWeek) []model.Overlay
}

type ScheduleService struct {
	repo     EventRepository
	overlays OverlaySource
	grid     atomic.Pointer[layout.Grid]
	clock    clock.Clock

	mu      sync.RWMutex
	initial *week.ISOWeek
}

// NewScheduleService builds the service; an invalid grid is replaced by
// layout.DefaultGrid.
func NewScheduleService(repo EventRepository, overlays OverlaySource, grid layout.Grid, clk clock.Clock) *ScheduleService {
	s := &ScheduleService{
		repo:     repo,
		overlays: overlays,
		clock:    clk,
	}
	s.SetGrid(grid)
	return s
}

// SetGrid swaps the grid used for validation and rendering.
func (s *ScheduleService) SetGrid(g layout.Grid) {
	if g.Validate() != nil {
		g = layout.DefaultGrid()
	}
	s.grid.Store(&g)
}

// SetInitialWeek pins the week shown when a request names none. A nil week
// restores "current week" behaviour.
func (s *ScheduleService) SetInitialWeek(w *week.ISOWeek) {
	s.mu.Lock()
	s.initial = w
	s.mu.Unlock()
}

// DefaultWeek is the pinned initial week or the week containing now.
func (s *ScheduleService) DefaultWeek() week.ISOWeek {
	s.mu.RLock()
	initial := s.initial
	s.mu.RUnlock()
	if initial != nil {
		return *initial
	}
	return week.Current(s.clock.Now())
}

// Grid returns the grid currently in effect.
func (s *ScheduleService) Grid() layout.Grid {
	return *s.grid.Load()
}

// WeekView is everything needed to render one week.
type WeekView struct {
	Week     week.ISOWeek
	Monday   week.Date
	Days     []week.Date
	Events   []model.Event
	Overlays []model.Overlay
	Query    string
}

// Week loads the events of wk, optionally filtered by a search term.
func (s *ScheduleService) Week(ctx context.Context, wk week.ISOWeek, query string) (WeekView, error) {
	monday, err := wk.Monday()
	if err != nil {
		return WeekView{}, err
	}
	grid := s.Grid()
	days := make([]week.Date, 0, len(grid.Days))
	for _, d := range grid.Days {
		days = append(days, monday.AddDays(int(d)-int(time.Monday)))
	}

	events, err := s.repo.ListEvents(ctx, wk)
	if err != nil {
		return WeekView{}, err
	}
	query = strings.TrimSpace(query)
	if query != "" {
		events = model.Filter(events, query)
	}

	var overlays []model.Overlay
	if s.overlays != nil {
		overlays = s.overlays.ForWeek(ctx, wk)
	}

	return WeekView{
		Week:     wk,
		Monday:   monday,
		Days:     days,
		Events:   events,
		Overlays: overlays,
		Query:    query,
	}, nil
}

func (s *ScheduleService) Event(ctx context.Context, id int64) (model.Event, error) {
	if id <= 0 {
		return model.Event{}, model.ErrInvalidID
	}
	return s.repo.GetEvent(ctx, id)
}

// EventInput is the writable part of an event as submitted by the form.
type EventInput struct {
	Year      int
	Week      int
	Day       string
	Start     string
	End       string
	CourseID  int64
	Form      string
	RoomID    int64
	TeacherID int64
	GroupID   int64
}

func (s *ScheduleService) CreateEvent(ctx context.Context, in EventInput) (model.Event, error) {
	ev, err := s.buildEvent(in)
	if err != nil {
		return model.Event{}, err
	}
	return s.repo.CreateEvent(ctx, ev)
}

func (s *ScheduleService) UpdateEvent(ctx context.Context, id int64, in EventInput) (model.Event, error) {
	if id <= 0 {
		return model.Event{}, model.ErrInvalidID
	}
	ev, err := s.buildEvent(in)
	if err != nil {
		return model.Event{}, err
	}
	ev.ID = id
	return s.repo.UpdateEvent(ctx, ev, s.clock.Now())
}

func (s *ScheduleService) DeleteEvent(ctx context.Context, id int64) error {
	if id <= 0 {
		return model.ErrInvalidID
	}
	return s.repo.DeleteEvent(ctx, id, s.clock.Now())
}

func (s *ScheduleService) FormData(ctx context.Context) (model.FormData, error) {
	return s.repo.FormData(ctx)
}

func (s *ScheduleService) buildEvent(in EventInput) (model.Event, error) {
	wk := week.ISOWeek{Year: in.Year, Week: in.Week}
	if err := wk.Validate(); err != nil {
		return model.Event{}, err
	}
	day, err := model.ParseWeekday(in.Day)
	if err != nil {
		return model.Event{}, err
	}
	start, err := model.ParseTimeOfDay(in.Start)
	if err != nil {
		return model.Event{}, err
	}
	end, err := model.ParseTimeOfDay(in.End)
	if err != nil {
		return model.Event{}, err
	}
	if in.CourseID <= 0 || in.RoomID <= 0 || in.TeacherID <= 0 || in.GroupID <= 0 {
		return model.Event{}, model.ErrInvalidID
	}
	form := strings.TrimSpace(in.Form)
	if form == "" {
		return model.Event{}, model.ErrInvalidForm
	}

	ev := model.Event{
		Year:      wk.Year,
		Week:      wk.Week,
		Day:       day,
		Start:     start,
		End:       end,
		CourseID:  in.CourseID,
		Form:      form,
		RoomID:    in.RoomID,
		TeacherID: in.TeacherID,
		GroupID:   in.GroupID,
	}
	if err := s.Grid().CheckSpan(ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}
