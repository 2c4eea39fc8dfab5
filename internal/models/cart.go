package models

import (
	"fmt"
	"time"
)

// CartEntry is one pending selection in a user's cart. Entries may overlap
// and duplicate each other; they are merged into segments on demand.
type CartEntry struct {
	ItemID      int64     `json:"item_id"`
	WorkspaceID int64     `json:"workspace_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Quantity    int64     `json:"quantity"`
}

// ParseCartEntry builds an entry from boundary values: ISO-8601 timestamps
// interpreted in loc when they carry no offset.
func ParseCartEntry(itemID, workspaceID int64, start, end string, quantity int64, loc *time.Location) (CartEntry, error) {
	startTime, err := ParseTimestamp(start, loc)
	if err != nil {
		return CartEntry{}, fmt.Errorf("start_time: %w", err)
	}
	endTime, err := ParseTimestamp(end, loc)
	if err != nil {
		return CartEntry{}, fmt.Errorf("end_time: %w", err)
	}
	return CartEntry{
		ItemID:      itemID,
		WorkspaceID: workspaceID,
		StartTime:   startTime,
		EndTime:     endTime,
		Quantity:    quantity,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts the ISO-8601 shapes used at the API boundary.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i < 2 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Segment is a maximal time range of constant aggregate demand for one item.
// It is derived from cart entries or reservations and never persisted.
type Segment struct {
	ItemID      int64     `json:"item_id"`
	WorkspaceID int64     `json:"workspace_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Quantity    int64     `json:"quantity"`
}

// Slot describes one fixed 15-minute unit of a day for an item.
type Slot struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Available     bool      `json:"available"`
	WithinWindow  bool      `json:"within_window"`
	UsedQuantity  int64     `json:"used_quantity"`
	TotalQuantity int64     `json:"total_quantity"`
}
