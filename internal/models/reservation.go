package models

import "time"

type Reservation struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	WorkspaceID   int64      `json:"workspace_id"`
	ItemID        int64      `json:"item_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Quantity      int64      `json:"quantity"`
	NoShow        bool       `json:"no_show"`
	ReturnedCount int64      `json:"returned_count"`
	InCart        bool       `json:"in_cart"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsHold reports whether the row is a soft hold rather than a confirmed booking.
func (r *Reservation) IsHold() bool {
	return r.InCart || r.HoldExpiresAt != nil
}

// IsActiveHold reports whether the row is a soft hold that has not expired at now.
func (r *Reservation) IsActiveHold(now time.Time) bool {
	return r.IsHold() && r.HoldExpiresAt != nil && r.HoldExpiresAt.After(now)
}

// CountsAt reports whether the row claims capacity at now: confirmed bookings
// always do, holds only until they expire.
func (r *Reservation) CountsAt(now time.Time) bool {
	if !r.IsHold() {
		return true
	}
	return r.IsActiveHold(now)
}

// Overlaps reports strict overlap with [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}

// Covers reports whether the row spans all of [start, end).
func (r *Reservation) Covers(start, end time.Time) bool {
	return !r.StartTime.After(start) && !r.EndTime.Before(end)
}

// OverlapFilter selects the reservations of one item that strictly overlap
// [Start, End) and still claim capacity at Now.
type OverlapFilter struct {
	ItemID int64
	Start  time.Time
	End    time.Time
	Now    time.Time
	// ExcludeHoldsOf skips soft holds owned by this user. Zero keeps all.
	ExcludeHoldsOf int64
}
