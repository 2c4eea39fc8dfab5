// Package notify records user notifications and queues reservation reminders.
package notify

import (
	"context"
	"fmt"
	"time"

	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/models"

	"github.com/rs/zerolog"
)

// Sink stores notifications and announces them on the event bus.
type Sink struct {
	repo     domain.NotificationRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewSink(repo domain.NotificationRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *Sink {
	return &Sink{repo: repo, eventBus: eventBus, logger: logger}
}

// Notify writes the notification row using ctx, so a caller inside a
// transaction gets it written in that transaction. Under events.WithDeferred
// the notification event is queued instead of published.
func (s *Sink) Notify(ctx context.Context, userID int64, message string, reservationID *int64) error {
	n := &models.Notification{
		UserID:        userID,
		ReservationID: reservationID,
		Message:       message,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotificationDelivery, err)
	}

	if s.eventBus != nil {
		payload := events.NotificationEventPayload{
			NotificationID: n.ID,
			UserID:         userID,
			ReservationID:  reservationID,
			Message:        message,
		}
		if pending := events.DeferredFrom(ctx); pending != nil {
			pending.Add(s.eventBus, events.EventNotificationCreated, payload)
		} else if err := s.eventBus.PublishJSON(events.EventNotificationCreated, payload); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to publish notification event")
		}
	}
	return nil
}

// ReminderScheduler queues "start" and "end" reminder jobs for confirmed
// reservations.
type ReminderScheduler struct {
	reservations domain.ReservationRepository
	jobs         domain.ReminderJobRepository
	startLead    time.Duration
	endLead      time.Duration
}

func NewReminderScheduler(reservations domain.ReservationRepository, jobs domain.ReminderJobRepository, startLead, endLead time.Duration) *ReminderScheduler {
	return &ReminderScheduler{
		reservations: reservations,
		jobs:         jobs,
		startLead:    startLead,
		endLead:      endLead,
	}
}

// Schedule inserts a pending job. Start reminders run startLead before the
// reservation starts, end reminders endLead before it ends.
func (s *ReminderScheduler) Schedule(ctx context.Context, reservationID int64, kind string) error {
	r, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	var runAt time.Time
	switch kind {
	case models.ReminderKindStart:
		runAt = r.StartTime.Add(-s.startLead)
	case models.ReminderKindEnd:
		runAt = r.EndTime.Add(-s.endLead)
	default:
		return domain.NewValidationError("kind", fmt.Sprintf("unknown reminder kind %q", kind))
	}

	return s.jobs.CreateReminderJob(ctx, &models.ReminderJob{
		ReservationID: reservationID,
		Kind:          kind,
		RunAt:         runAt,
		Status:        models.JobStatusPending,
	})
}
