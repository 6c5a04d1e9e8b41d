// Package availability computes bookable slots for a doctor on a given day.
package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a visit
// of length duration would not overlap any busy interval and does not start before now.
//
// All times are expected to be in the same location.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// Overlaps reports whether [start,end) intersects any busy interval.
func Overlaps(start, end time.Time, busy []Interval) bool {
	return overlapsAny(start, end, busy)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// Windows resolves the weekly working hours that apply to day in loc.
func Windows(hours []model.WorkingHours, day time.Time, loc *time.Location) ([]Interval, error) {
	y, m, d := day.In(loc).Date()
	weekday := time.Date(y, m, d, 0, 0, 0, 0, loc).Weekday()

	var out []Interval
	for _, wh := range hours {
		if wh.Weekday != weekday {
			continue
		}
		start, err := clock(y, m, d, wh.Start, loc)
		if err != nil {
			return nil, err
		}
		end, err := clock(y, m, d, wh.End, loc)
		if err != nil {
			return nil, err
		}
		if !end.After(start) {
			return nil, fmt.Errorf("working hours %s-%s: end must be after start", wh.Start, wh.End)
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out, nil
}

// Within reports whether [start,end) fits entirely inside one of the windows.
func Within(start, end time.Time, windows []Interval) bool {
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true
		}
	}
	return false
}

// DaySlots lists free slots of length duration across every working window of the day.
func DaySlots(windows []Interval, duration time.Duration, busy []Interval, now time.Time) []model.TimeSlot {
	var out []model.TimeSlot
	for _, w := range windows {
		for _, start := range AvailableSlots(w.Start, w.End, duration, duration, busy, now) {
			out = append(out, model.TimeSlot{
				Start: start.Format("15:04"),
				End:   start.Add(duration).Format("15:04"),
			})
		}
	}
	return out
}

func clock(y int, m time.Month, d int, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid working hours time %q", hhmm)
	}
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}
