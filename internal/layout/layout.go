// Package layout positions schedule events on an hour-by-day grid.
//
// Every event is anchored in the cell of its start hour; its top offset is
// proportional to the minutes past that hour and its height to its duration,
// so events longer than an hour overflow the cell downward instead of being
// split. Events that share time on the same day are given equal-width lanes.
//
// All functions are pure and may be called concurrently.
package layout

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"raspored/internal/model"
)

// Policy decides what Arrange does with events that have no grid cell.
type Policy int

const (
	// DropOutOfRange leaves such events out of the layout and reports them
	// in Result.Dropped.
	DropOutOfRange Policy = iota
	// RejectOutOfRange makes Arrange fail with an OutOfRangeHourError.
	RejectOutOfRange
)

func (p Policy) String() string {
	if p == RejectOutOfRange {
		return "reject"
	}
	return "drop"
}

// ParsePolicy maps "drop"/"reject" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop":
		return DropOutOfRange, nil
	case "reject":
		return RejectOutOfRange, nil
	default:
		return DropOutOfRange, fmt.Errorf("unknown out-of-range policy %q", s)
	}
}

// Grid describes the displayed hour range and pixel geometry.
type Grid struct {
	// StartHour is the first displayed hour; EndHour is exclusive.
	StartHour int
	EndHour   int

	// RowHeightPx is the height of one hour row.
	RowHeightPx float64
	// GapPx is subtracted from every event's height so adjacent events do
	// not touch.
	GapPx float64

	Days       []time.Weekday
	OutOfRange Policy
}

const (
	DefaultStartHour   = 8
	DefaultEndHour     = 21
	DefaultRowHeightPx = 60
	DefaultGapPx       = 2
)

func DefaultGrid() Grid {
	return Grid{
		StartHour:   DefaultStartHour,
		EndHour:     DefaultEndHour,
		RowHeightPx: DefaultRowHeightPx,
		GapPx:       DefaultGapPx,
		Days:        append([]time.Weekday(nil), model.Weekdays...),
		OutOfRange:  DropOutOfRange,
	}
}

// Validate checks the grid geometry.
func (g Grid) Validate() error {
	if g.StartHour < 0 || g.EndHour > 24 || g.StartHour >= g.EndHour {
		return fmt.Errorf("invalid grid hours %d-%d", g.StartHour, g.EndHour)
	}
	if g.RowHeightPx <= 0 {
		return errors.New("grid row height must be positive")
	}
	if g.GapPx < 0 {
		return errors.New("grid gap must not be negative")
	}
	if len(g.Days) == 0 {
		return errors.New("grid has no days")
	}
	seen := make(map[time.Weekday]bool, len(g.Days))
	for _, d := range g.Days {
		if !model.IsWeekday(d) {
			return fmt.Errorf("grid day %s is not a weekday", d)
		}
		if seen[d] {
			return fmt.Errorf("grid day %s listed twice", d)
		}
		seen[d] = true
	}
	return nil
}

// Hours lists the displayed hours.
func (g Grid) Hours() []int {
	out := make([]int, 0, g.EndHour-g.StartHour)
	for h := g.StartHour; h < g.EndHour; h++ {
		out = append(out, h)
	}
	return out
}

// CellKey addresses one grid cell.
type CellKey struct {
	Day  time.Weekday
	Hour int
}

// HasCell reports whether the grid renders cell k.
func (g Grid) HasCell(k CellKey) bool {
	if k.Hour < g.StartHour || k.Hour >= g.EndHour {
		return false
	}
	for _, d := range g.Days {
		if d == k.Day {
			return true
		}
	}
	return false
}

// InvalidDurationError reports an event whose end is not after its start.
type InvalidDurationError struct {
	EventID int64
	Start   model.TimeOfDay
	End     model.TimeOfDay
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("event %d: end %s is not after start %s", e.EventID, e.End, e.Start)
}

// OutOfRangeHourError reports an event that has no cell in the grid.
type OutOfRangeHourError struct {
	EventID   int64
	Cell      CellKey
	StartHour int
	EndHour   int
}

func (e *OutOfRangeHourError) Error() string {
	return fmt.Sprintf("event %d: no grid cell for %s %02d:00 (grid %02d:00-%02d:00)",
		e.EventID, e.Cell.Day, e.Cell.Hour, e.StartHour, e.EndHour)
}

// Placement is the computed position of one event.
type Placement struct {
	Event model.Event
	Cell  CellKey

	// TopPx is the offset from the top of the cell.
	TopPx float64
	// HeightPx may exceed one row for events longer than an hour.
	HeightPx float64

	// Column is the event's lane among Columns lanes of its overlap cluster.
	Column  int
	Columns int
}

// LeftPercent is the horizontal offset of the lane within the cell.
func (p Placement) LeftPercent() float64 {
	if p.Columns <= 1 {
		return 0
	}
	return float64(p.Column) * 100 / float64(p.Columns)
}

// WidthPercent is the lane width within the cell.
func (p Placement) WidthPercent() float64 {
	if p.Columns <= 1 {
		return 100
	}
	return 100 / float64(p.Columns)
}

// Place computes the cell, offset and height of ev. It returns an
// InvalidDurationError for non-positive durations and an OutOfRangeHourError
// when the grid has no cell for the event's day and start hour.
func Place(ev model.Event, g Grid) (Placement, error) {
	duration := ev.DurationMinutes()
	if duration <= 0 {
		return Placement{}, &InvalidDurationError{EventID: ev.ID, Start: ev.Start, End: ev.End}
	}

	cell := CellKey{Day: ev.Day, Hour: ev.Start.Hour}
	if !g.HasCell(cell) {
		return Placement{}, &OutOfRangeHourError{EventID: ev.ID, Cell: cell, StartHour: g.StartHour, EndHour: g.EndHour}
	}

	height := float64(duration)/60*g.RowHeightPx - g.GapPx
	if height < 0 {
		height = 0
	}

	return Placement{
		Event:    ev,
		Cell:     cell,
		TopPx:    float64(ev.Start.Minute) / 60 * g.RowHeightPx,
		HeightPx: height,
		Column:   0,
		Columns:  1,
	}, nil
}

// CheckSpan validates an event before it is stored: the duration must be
// positive, the start hour must have a cell and the end must not run past
// the last displayed hour.
func (g Grid) CheckSpan(ev model.Event) error {
	if _, err := Place(ev, g); err != nil {
		return err
	}
	if ev.End.Minutes() > g.EndHour*60 {
		return &OutOfRangeHourError{
			EventID:   ev.ID,
			Cell:      CellKey{Day: ev.Day, Hour: ev.End.Hour},
			StartHour: g.StartHour,
			EndHour:   g.EndHour,
		}
	}
	return nil
}

// Result is the layout of a set of events.
type Result struct {
	// Placements are ordered by day, start, end and event ID.
	Placements []Placement
	// Dropped holds events without a grid cell under DropOutOfRange.
	Dropped []model.Event
}

// InCell returns the placements anchored in cell k.
func (r Result) InCell(k CellKey) []Placement {
	var out []Placement
	for _, p := range r.Placements {
		if p.Cell == k {
			out = append(out, p)
		}
	}
	return out
}

// Arrange places every event and assigns overlap lanes.
func Arrange(events []model.Event, g Grid) (Result, error) {
	var res Result

	byDay := make(map[time.Weekday][]Placement)
	for _, ev := range events {
		p, err := Place(ev, g)
		if err != nil {
			var oor *OutOfRangeHourError
			if errors.As(err, &oor) && g.OutOfRange == DropOutOfRange {
				res.Dropped = append(res.Dropped, ev)
				continue
			}
			return Result{}, err
		}
		byDay[ev.Day] = append(byDay[ev.Day], p)
	}

	for _, day := range g.Days {
		placed := byDay[day]
		delete(byDay, day)
		assignLanes(placed)
		res.Placements = append(res.Placements, placed...)
	}
	return res, nil
}

// assignLanes sorts one day's placements and gives each overlap cluster
// equal-width lanes, first free lane first.
func assignLanes(placed []Placement) {
	sort.SliceStable(placed, func(i, j int) bool {
		a, b := placed[i].Event, placed[j].Event
		if a.Start != b.Start {
			return a.Start.Minutes() < b.Start.Minutes()
		}
		if a.End != b.End {
			return a.End.Minutes() < b.End.Minutes()
		}
		return a.ID < b.ID
	})

	clusterStart := 0
	clusterEnd := -1
	var laneEnds []int

	closeCluster := func(end int) {
		for k := clusterStart; k < end; k++ {
			placed[k].Columns = len(laneEnds)
		}
	}

	for i := range placed {
		ev := placed[i].Event
		if i > clusterStart && ev.Start.Minutes() >= clusterEnd {
			closeCluster(i)
			clusterStart = i
			laneEnds = laneEnds[:0]
		}
		if i == clusterStart {
			clusterEnd = ev.End.Minutes()
		}

		lane := -1
		for l, end := range laneEnds {
			if end <= ev.Start.Minutes() {
				lane = l
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, 0)
		}
		laneEnds[lane] = ev.End.Minutes()
		placed[i].Column = lane

		if ev.End.Minutes() > clusterEnd {
			clusterEnd = ev.End.Minutes()
		}
	}
	closeCluster(len(placed))
}
