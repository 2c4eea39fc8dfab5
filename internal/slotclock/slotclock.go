// Package slotclock quantizes time into the fixed 15-minute slots used for
// availability, hold coverage and capacity accounting.
package slotclock

import (
	"iter"
	"time"

	"reservo/internal/models"
)

// Interval is the slot length.
const Interval = models.SlotDuration

// Floor rounds t down to the nearest slot boundary in loc, zeroing seconds.
func Floor(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	y, mo, d := local.Date()
	h, m, _ := local.Clock()
	step := int(Interval / time.Minute)
	return time.Date(y, mo, d, h, m-m%step, 0, 0, loc)
}

// Ceil rounds t up to the nearest slot boundary in loc. Instants already on a
// boundary are returned unchanged.
func Ceil(t time.Time, loc *time.Location) time.Time {
	f := Floor(t, loc)
	if f.Equal(t) {
		return f
	}
	return f.Add(Interval)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SlotsOfDay yields the slot starts of day: 96 instants from midnight in loc,
// spaced by Interval. The sequence can be ranged over any number of times.
func SlotsOfDay(day time.Time, loc *time.Location) iter.Seq[time.Time] {
	start := StartOfDay(day, loc)
	return func(yield func(time.Time) bool) {
		for i := 0; i < models.SlotsPerDay; i++ {
			if !yield(start.Add(time.Duration(i) * Interval)) {
				return
			}
		}
	}
}

// Ticks yields every slot start from Floor(start) up to, but excluding,
// Ceil(end). An empty or inverted range yields nothing.
func Ticks(start, end time.Time, loc *time.Location) iter.Seq[time.Time] {
	from := Floor(start, loc)
	to := Ceil(end, loc)
	return func(yield func(time.Time) bool) {
		for t := from; t.Before(to); t = t.Add(Interval) {
			if !yield(t) {
				return
			}
		}
	}
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a clock backed by time.Now.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
