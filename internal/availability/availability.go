// Package availability reports per-slot free capacity of an item for one day.
package availability

import (
	"context"
	"fmt"
	"time"

	"reservo/internal/domain"
	"reservo/internal/models"
	"reservo/internal/slotclock"
)

// Bounds further clip the bookable part of a day, e.g. "not before now" or
// "not past the booking horizon". Zero values leave that side open.
type Bounds struct {
	Start time.Time
	End   time.Time
}

// HorizonBounds opens bookings from now until the end of the day that lies
// horizonDays after today in loc.
func HorizonBounds(now time.Time, horizonDays int, loc *time.Location) Bounds {
	return Bounds{
		Start: now,
		End:   slotclock.StartOfDay(now, loc).AddDate(0, 0, horizonDays+1),
	}
}

type Calculator struct {
	reservations domain.ReservationRepository
	clock        slotclock.Clock
}

func NewCalculator(reservations domain.ReservationRepository, clock slotclock.Clock) *Calculator {
	if clock == nil {
		clock = slotclock.System()
	}
	return &Calculator{reservations: reservations, clock: clock}
}

// EffectiveWindow intersects the item's daily window on day with the day
// itself and the outer bounds. An empty result has end <= start.
func EffectiveWindow(item *models.Item, day time.Time, loc *time.Location, bounds Bounds) (time.Time, time.Time) {
	dayStart := slotclock.StartOfDay(day, loc)
	dayEnd := dayStart.Add(models.SlotsPerDay * slotclock.Interval)

	start, end := item.WindowOn(day, loc)
	start = latest(start, dayStart)
	end = earliest(end, dayEnd)
	if !bounds.Start.IsZero() {
		start = latest(start, bounds.Start)
	}
	if !bounds.End.IsZero() {
		end = earliest(end, bounds.End)
	}
	return start, end
}

// Day returns the 96 slot descriptors of day for item. Slots outside the
// effective window are reported unavailable with zero usage. Usage counts
// confirmed reservations and holds that have not expired.
func (c *Calculator) Day(ctx context.Context, item *models.Item, requested int64, day time.Time, loc *time.Location, bounds Bounds) ([]models.Slot, error) {
	if requested < 0 {
		return nil, domain.NewValidationError("quantity", "must be >= 0")
	}
	if loc == nil {
		loc = time.UTC
	}

	dayStart := slotclock.StartOfDay(day, loc)
	dayEnd := dayStart.Add(models.SlotsPerDay * slotclock.Interval)
	effStart, effEnd := EffectiveWindow(item, day, loc, bounds)

	used := make([]int64, models.SlotsPerDay)
	if effStart.Before(effEnd) {
		rs, err := c.reservations.FindOverlapping(ctx, models.OverlapFilter{
			ItemID: item.ID,
			Start:  dayStart,
			End:    dayEnd,
			Now:    c.clock.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load reservations for item %d: %w", item.ID, err)
		}
		for _, r := range rs {
			first, last := slotRange(dayStart, latest(r.StartTime, dayStart), earliest(r.EndTime, dayEnd))
			for idx := first; idx < last; idx++ {
				used[idx] += r.Quantity
			}
		}
	}

	slots := make([]models.Slot, 0, models.SlotsPerDay)
	i := 0
	for start := range slotclock.SlotsOfDay(day, loc) {
		end := start.Add(slotclock.Interval)
		slot := models.Slot{
			Start:         start,
			End:           end,
			TotalQuantity: item.Quantity,
		}
		if !start.Before(effStart) && !end.After(effEnd) {
			slot.WithinWindow = true
			slot.UsedQuantity = used[i]
			slot.Available = used[i]+requested <= item.Quantity
		}
		slots = append(slots, slot)
		i++
	}
	return slots, nil
}

// slotRange returns the half-open index range of the day's slots that
// strictly overlap [start, end). Indexes are measured from dayStart so days
// with a DST shift keep their fixed 96-slot layout.
func slotRange(dayStart, start, end time.Time) (int, int) {
	if !start.Before(end) {
		return 0, 0
	}
	first := int(start.Sub(dayStart) / slotclock.Interval)
	last := int((end.Sub(dayStart) + slotclock.Interval - 1) / slotclock.Interval)
	return max(first, 0), min(last, models.SlotsPerDay)
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
