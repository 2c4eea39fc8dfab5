// Package segment merges timed quantities into non-overlapping demand segments
// with a sweep line over start and end events.
package segment

import (
	"slices"
	"time"

	"reservo/internal/models"
)

// Interval is one timed quantity: a cart entry, a hold or a confirmed reservation.
type Interval struct {
	Start    time.Time
	End      time.Time
	Quantity int64
}

func (iv Interval) valid() bool {
	return iv.Start.Before(iv.End) && iv.Quantity > 0
}

// FromCartEntries converts cart entries to intervals.
func FromCartEntries(entries []models.CartEntry) []Interval {
	out := make([]Interval, 0, len(entries))
	for _, e := range entries {
		out = append(out, Interval{Start: e.StartTime, End: e.EndTime, Quantity: e.Quantity})
	}
	return out
}

// FromReservations converts reservations to intervals.
func FromReservations(rs []*models.Reservation) []Interval {
	out := make([]Interval, 0, len(rs))
	for _, r := range rs {
		out = append(out, Interval{Start: r.StartTime, End: r.EndTime, Quantity: r.Quantity})
	}
	return out
}

type step struct {
	start    time.Time
	end      time.Time
	quantity int64
}

// sweep returns the ranges between consecutive event instants together with
// the running total over each range. Ranges with a zero total are skipped.
func sweep(intervals []Interval) []step {
	deltas := make(map[int64]int64)
	instants := make(map[int64]time.Time)
	for _, iv := range intervals {
		if !iv.valid() {
			continue
		}
		s, e := iv.Start.UnixNano(), iv.End.UnixNano()
		deltas[s] += iv.Quantity
		deltas[e] -= iv.Quantity
		if _, ok := instants[s]; !ok {
			instants[s] = iv.Start
		}
		if _, ok := instants[e]; !ok {
			instants[e] = iv.End
		}
	}
	if len(deltas) == 0 {
		return nil
	}

	keys := make([]int64, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var (
		steps   []step
		running int64
	)
	for i, k := range keys {
		if i > 0 && running > 0 {
			steps = append(steps, step{start: instants[keys[i-1]], end: instants[k], quantity: running})
		}
		running += deltas[k]
	}
	return steps
}

// Merge folds intervals of one item into the minimal ordered list of
// non-overlapping segments. Adjacent ranges with equal quantity are coalesced.
// Intervals with start >= end or quantity <= 0 are ignored.
func Merge(itemID, workspaceID int64, intervals []Interval) []models.Segment {
	steps := sweep(intervals)
	segments := make([]models.Segment, 0, len(steps))
	for _, st := range steps {
		if n := len(segments); n > 0 {
			last := &segments[n-1]
			if last.Quantity == st.quantity && last.EndTime.Equal(st.start) {
				last.EndTime = st.end
				continue
			}
		}
		segments = append(segments, models.Segment{
			ItemID:      itemID,
			WorkspaceID: workspaceID,
			StartTime:   st.start,
			EndTime:     st.end,
			Quantity:    st.quantity,
		})
	}
	return segments
}

// Peak returns the highest aggregate quantity of intervals clipped to
// [start, end).
func Peak(intervals []Interval, start, end time.Time) int64 {
	clipped := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Start.Before(start) {
			iv.Start = start
		}
		if iv.End.After(end) {
			iv.End = end
		}
		clipped = append(clipped, iv)
	}

	var peak int64
	for _, st := range sweep(clipped) {
		peak = max(peak, st.quantity)
	}
	return peak
}
