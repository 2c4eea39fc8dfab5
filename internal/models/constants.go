package models

import "time"

const (
	JobStatusPending = "pending"
	JobStatusRetry   = "retry"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

const (
	// SlotDuration is the fixed quantization unit of a day.
	SlotDuration = 15 * time.Minute

	// SlotsPerDay is the number of slots in a 24-hour day.
	SlotsPerDay = 96

	// MinCartQuantity and MaxCartQuantity bound the quantity of a cart entry
	// regardless of the item's capacity.
	MinCartQuantity = 1
	MaxCartQuantity = 10

	// DefaultHoldTTL is how long a soft hold claims capacity.
	DefaultHoldTTL = 15 * time.Minute

	// DefaultCartTTL is how long an idle cart survives in the cart storage.
	DefaultCartTTL = 24 * time.Hour

	// DefaultHorizonDays limits how far ahead availability is offered.
	DefaultHorizonDays = 7

	// DefaultHoldSweepInterval is the period of the expired hold sweep.
	DefaultHoldSweepInterval = time.Minute

	// DefaultReminderStartLead and DefaultReminderEndLead shift reminders
	// ahead of the reservation start and end.
	DefaultReminderStartLead = time.Hour
	DefaultReminderEndLead   = 15 * time.Minute

	// DefaultNoShowThreshold and DefaultNoShowWindowDays drive the blocking policy.
	DefaultNoShowThreshold  = 3
	DefaultNoShowWindowDays = 30
)
