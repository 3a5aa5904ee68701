package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "raspored/internal/log"
	"raspored/internal/model"
)

// maxOccurrences caps the expansion of a single recurring entry.
const maxOccurrences = 1000

// Expand turns entries into the concrete overlays that intersect
// [from, to), expressed in loc. Overrides (RECURRENCE-ID) replace the
// instance they point at; EXDATEs remove instances.
func Expand(entries []Entry, from, to time.Time, loc *time.Location) []model.Overlay {
	if loc == nil {
		loc = time.Local
	}
	if !to.After(from) {
		return nil
	}

	base := make(map[string][]Entry)
	overrides := make(map[string][]Entry)
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		base[e.UID] = append(base[e.UID], e)
	}

	var out []model.Overlay
	for uid, list := range base {
		for _, e := range list {
			out = append(out, expandEntry(e, overrides[uid], from, to, loc)...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		if out[i].Summary != out[j].Summary {
			return out[i].Summary < out[j].Summary
		}
		return out[i].InstanceKey < out[j].InstanceKey
	})
	return out
}

func expandEntry(e Entry, overrides []Entry, from, to time.Time, loc *time.Location) []model.Overlay {
	var starts []time.Time
	if e.RRule == "" {
		starts = []time.Time{e.Start}
	} else {
		r, err := rrule.StrToRRule(e.RRule)
		if err != nil {
			appLog.Warn("ics rrule ignored", "feed", e.FeedID, "uid", e.UID, "rrule", e.RRule, "cause", err.Error())
			return nil
		}
		r.DTStart(e.Start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range e.ExDates {
			set.ExDate(ex.In(e.Start.Location()))
		}

		// Widen the window by the entry's length so instances that began
		// before from but still run into it are found.
		span := e.End.Sub(e.Start)
		starts = set.Between(from.Add(-span).In(e.Start.Location()), to.In(e.Start.Location()), true)
		if len(starts) > maxOccurrences {
			appLog.Warn("ics recurrence truncated", "feed", e.FeedID, "uid", e.UID, "cap", maxOccurrences)
			starts = starts[:maxOccurrences]
		}
	}

	var out []model.Overlay
	for _, start := range starts {
		inst := e
		inst.Start = start
		inst.End = start.Add(e.End.Sub(e.Start))
		if ov, ok := findOverride(overrides, start); ok {
			inst = ov
		}

		o := toOverlay(inst, loc)
		if o.Start.Before(to) && o.End.After(from) {
			out = append(out, o)
		}
	}
	return out
}

func findOverride(overrides []Entry, start time.Time) (Entry, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return Entry{}, false
}

// toOverlay converts an instance into loc. Floating all-day dates keep their
// calendar date in loc.
func toOverlay(e Entry, loc *time.Location) model.Overlay {
	start, end := e.Start.In(loc), e.End.In(loc)
	if e.AllDay {
		start = time.Date(e.Start.Year(), e.Start.Month(), e.Start.Day(), 0, 0, 0, 0, loc)
		end = time.Date(e.End.Year(), e.End.Month(), e.End.Day(), 0, 0, 0, 0, loc)
	}
	return model.Overlay{
		SourceID:    e.FeedID,
		UID:         e.UID,
		InstanceKey: e.UID + "@" + start.Format(time.RFC3339),
		Summary:     e.Summary,
		Location:    e.Location,
		AllDay:      e.AllDay,
		Start:       start,
		End:         end,
	}
}
