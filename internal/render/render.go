// Package render turns view state and layout output into HTML pages.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"time"

	"raspored/internal/layout"
	"raspored/internal/model"
	"raspored/internal/view"
	"raspored/internal/week"
)

//go:embed templates/*.html
var templateFS embed.FS

// EmptyTable is printed instead of a table without rows.
const EmptyTable = "Nema podataka za prikaz."

var dayNames = map[time.Weekday]string{
	time.Monday:    "Ponedjeljak",
	time.Tuesday:   "Utorak",
	time.Wednesday: "Srijeda",
	time.Thursday:  "Četvrtak",
	time.Friday:    "Petak",
	time.Saturday:  "Subota",
	time.Sunday:    "Nedjelja",
}

// DayName returns the Croatian name of wd.
func DayName(wd time.Weekday) string {
	return dayNames[wd]
}

type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"dayName": DayName,
		"clock": func(t time.Time, loc *time.Location) string {
			return t.In(loc).Format("02.01.2006. 15:04")
		},
		"empty": func() string { return EmptyTable },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// WeekPage is the input of the week page. Notice is shown above the grid,
// typically the outcome of a form submission.
type WeekPage struct {
	State    view.State
	Grid     layout.Grid
	Location *time.Location
	Notice   string
}

type weekData struct {
	Week       week.ISOWeek
	Title      string
	Query      string
	PrevHref   string
	NextHref   string
	Status     string
	Err        string
	Notice     string
	RowHeight  float64
	Columns    []dayColumn
	Rows       []hourRow
	Dropped    []eventBox
	Selected   *eventBox
	DayOptions []dayOption
	CloseHref  string
	Ready      bool
	EventCount int
}

type dayOption struct {
	Value string
	Label string
}

type dayColumn struct {
	Name     string
	Date     string
	Overlays []model.Overlay
}

type hourRow struct {
	Label string
	Cells []cellData
}

type cellData struct {
	Day    string
	Hour   int
	Events []eventBox
}

type eventBox struct {
	ID       int64
	Time     string
	Day      string
	Course   string
	Form     string
	Room     string
	Teacher  string
	Group    string
	Href     string
	Style    template.CSS
	Selected bool

	DayValue string
	Start    string
	End      string
}

// Week renders the week grid. The layout result is returned so callers can
// account for dropped events; a layout error is shown on the page instead of
// failing the render.
func (r *Renderer) Week(w io.Writer, p WeekPage) (layout.Result, error) {
	data, res := buildWeek(p)
	if err := r.tmpl.ExecuteTemplate(w, "week.html", data); err != nil {
		return res, fmt.Errorf("render week: %w", err)
	}
	return res, nil
}

func buildWeek(p WeekPage) (weekData, layout.Result) {
	s := p.State
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	data := weekData{
		Week:      s.Week,
		Title:     fmt.Sprintf("Tjedan %d, %d.", s.Week.Week, s.Week.Year),
		Query:     s.Query,
		Status:    s.Status.String(),
		Err:       s.Err,
		Notice:    p.Notice,
		RowHeight: p.Grid.RowHeightPx,
	}
	if prev := view.Reduce(s, view.Navigate{Delta: -1}); prev.Status != view.StatusError {
		data.PrevHref = stateHref(prev)
	}
	if next := view.Reduce(s, view.Navigate{Delta: 1}); next.Status != view.StatusError {
		data.NextHref = stateHref(next)
	}
	data.CloseHref = stateHref(view.Reduce(s, view.ClearSelection{}))

	monday, err := s.Week.Monday()
	if err != nil {
		data.Status = view.StatusError.String()
		data.Err = err.Error()
		data.Ready = true
		return data, layout.Result{}
	}
	for _, d := range p.Grid.Days {
		date := monday.AddDays(int(d) - int(time.Monday))
		col := dayColumn{Name: DayName(d), Date: date.Time().Format("02.01.")}
		dayStart := date.In(loc)
		for _, o := range s.Overlays {
			if o.Covers(dayStart) {
				col.Overlays = append(col.Overlays, o)
			}
		}
		data.Columns = append(data.Columns, col)
	}

	visible := s.Visible()
	data.EventCount = len(visible)
	res, err := layout.Arrange(visible, p.Grid)
	if err != nil {
		data.Status = view.StatusError.String()
		data.Err = err.Error()
	}

	for _, h := range p.Grid.Hours() {
		row := hourRow{Label: fmt.Sprintf("%d:00", h)}
		for _, d := range p.Grid.Days {
			c := cellData{Day: model.DayName(d), Hour: h}
			for _, pl := range res.InCell(layout.CellKey{Day: d, Hour: h}) {
				box := newBox(pl.Event, s)
				box.Style = placementStyle(pl)
				c.Events = append(c.Events, box)
			}
			row.Cells = append(row.Cells, c)
		}
		data.Rows = append(data.Rows, row)
	}
	for _, ev := range res.Dropped {
		data.Dropped = append(data.Dropped, newBox(ev, s))
	}
	if ev, ok := s.Selected(); ok {
		box := newBox(ev, s)
		data.Selected = &box
		for _, d := range p.Grid.Days {
			data.DayOptions = append(data.DayOptions, dayOption{Value: model.DayName(d), Label: DayName(d)})
		}
	}

	data.Ready = s.Status == view.StatusReady || s.Status == view.StatusError
	return data, res
}

func newBox(ev model.Event, s view.State) eventBox {
	return eventBox{
		ID:       ev.ID,
		Time:     ev.Start.String() + " - " + ev.End.String(),
		Day:      DayName(ev.Day),
		Course:   ev.Course,
		Form:     ev.Form,
		Room:     ev.Room,
		Teacher:  ev.Teacher,
		Group:    ev.Group,
		Href:     weekHref(s.Week, s.Query, ev.ID),
		Selected: s.SelectedID == ev.ID,
		DayValue: model.DayName(ev.Day),
		Start:    ev.Start.String(),
		End:      ev.End.String(),
	}
}

func placementStyle(p layout.Placement) template.CSS {
	return template.CSS(fmt.Sprintf("top:%spx;height:%spx;left:%s%%;width:%s%%",
		num(p.TopPx), num(p.HeightPx), num(p.LeftPercent()), num(p.WidthPercent())))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// stateHref links to the week page showing s.
func stateHref(s view.State) string {
	return weekHref(s.Week, s.Query, s.SelectedID)
}

// weekHref links to the week page with the given query and selection.
func weekHref(wk week.ISOWeek, query string, selected int64) string {
	v := url.Values{}
	v.Set("year", strconv.Itoa(wk.Year))
	v.Set("week", strconv.Itoa(wk.Week))
	if query != "" {
		v.Set("q", query)
	}
	if selected > 0 {
		v.Set("selected", strconv.FormatInt(selected, 10))
	}
	return "/?" + v.Encode()
}

// ReportsPage is the input of the reports page. A nil slice renders the
// empty-table message.
type ReportsPage struct {
	JMBAG          string
	StudentErr     string
	Student        []model.StudentScheduleRow
	TeacherCourses []model.TeacherCourseRow
	EmailChanges   []model.EmailChange
	History        []model.HistoryEntry
	Location       *time.Location
}

func (r *Renderer) Reports(w io.Writer, p ReportsPage) error {
	if p.Location == nil {
		p.Location = time.Local
	}
	if err := r.tmpl.ExecuteTemplate(w, "reports.html", p); err != nil {
		return fmt.Errorf("render reports: %w", err)
	}
	return nil
}
