package models

import (
	"fmt"
	"time"
)

// TimeOfDayLayout is the layout of an item's daily window bounds.
const TimeOfDayLayout = "15:04"

type Item struct {
	ID          int64     `yaml:"id" json:"id"`
	WorkspaceID int64     `yaml:"workspace_id" json:"workspace_id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Quantity    int64     `yaml:"quantity" json:"quantity"`
	WindowStart string    `yaml:"window_start" json:"window_start,omitempty"`
	WindowEnd   string    `yaml:"window_end" json:"window_end,omitempty"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

// HasWindow reports whether the item restricts bookings to a daily window.
func (i *Item) HasWindow() bool {
	return i.WindowStart != "" && i.WindowEnd != ""
}

// Validate checks the item invariants: non-negative quantity and a window
// whose end is strictly after its start.
func (i *Item) Validate() error {
	if i.Quantity < 0 {
		return fmt.Errorf("quantity must be >= 0, got %d", i.Quantity)
	}
	if i.WindowStart == "" && i.WindowEnd == "" {
		return nil
	}
	start, err := parseTimeOfDay(i.WindowStart)
	if err != nil {
		return fmt.Errorf("window_start: %w", err)
	}
	end, err := parseTimeOfDay(i.WindowEnd)
	if err != nil {
		return fmt.Errorf("window_end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("window_end %s must be after window_start %s", i.WindowEnd, i.WindowStart)
	}
	return nil
}

// WindowOn maps the daily window onto the calendar day of day in loc.
// Items without a window, with an unparseable window or with an inverted one
// get the full day.
func (i *Item) WindowOn(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.In(loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	if !i.HasWindow() {
		return dayStart, dayEnd
	}
	startOffset, err := parseTimeOfDay(i.WindowStart)
	if err != nil {
		return dayStart, dayEnd
	}
	endOffset, err := parseTimeOfDay(i.WindowEnd)
	if err != nil {
		return dayStart, dayEnd
	}

	start := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(startOffset)
	end := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(endOffset)
	if !end.After(start) {
		return dayStart, dayEnd
	}
	return start, end
}

// parseTimeOfDay returns the offset from midnight for an HH:MM value.
// "24:00" is accepted as the end of the day.
func parseTimeOfDay(s string) (time.Duration, error) {
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse(TimeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Admits reports whether [start, end) lies inside the daily window of the
// day start falls on. Items without a window admit any range.
func (i *Item) Admits(start, end time.Time, loc *time.Location) bool {
	if !i.HasWindow() {
		return true
	}
	winStart, winEnd := i.WindowOn(start, loc)
	return !start.Before(winStart) && !end.After(winEnd)
}
