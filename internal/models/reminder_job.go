package models

import "time"

const (
	ReminderKindStart = "start"
	ReminderKindEnd   = "end"
)

// ReminderJob is a queued reminder for one confirmed reservation.
type ReminderJob struct {
	ID            string     `json:"id"`
	ReservationID int64      `json:"reservation_id"`
	Kind          string     `json:"kind"`
	RunAt         time.Time  `json:"run_at"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
}

// Notification is a message addressed to a user, optionally about a reservation.
type Notification struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ReservationID *int64    `json:"reservation_id,omitempty"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}
