package service

import (
	"context"

	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/models"

	"github.com/rs/zerolog"
)

type ReservationService struct {
	repo     domain.ReservationRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewReservationService(repo domain.ReservationRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *ReservationService {
	return &ReservationService{repo: repo, eventBus: eventBus, logger: logger}
}

func (s *ReservationService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// Cancel deletes a reservation owned by userID. Reservations of other users
// are reported as not found.
func (s *ReservationService) Cancel(ctx context.Context, userID, id int64) error {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return &domain.NotFoundError{Entity: "reservation", ID: id}
	}
	if err := s.repo.DestroyReservation(ctx, id); err != nil {
		return err
	}

	s.publishEvent(events.EventReservationCancelled, r, "cancelled by user")
	s.logger.Info().Int64("reservation_id", id).Int64("user_id", userID).Msg("Reservation cancelled")
	return nil
}

func (s *ReservationService) MarkNoShow(ctx context.Context, id int64) error {
	return s.repo.MarkNoShow(ctx, id)
}

// RecordReturn adds returned units. The stored count never exceeds the
// reservation quantity.
func (s *ReservationService) RecordReturn(ctx context.Context, id int64, count int64) error {
	if count <= 0 {
		return domain.NewValidationError("count", "must be positive")
	}
	return s.repo.RecordReturn(ctx, id, count)
}

func (s *ReservationService) publishEvent(eventType string, r *models.Reservation, reason string) {
	if s.eventBus == nil {
		return
	}
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		WorkspaceID:   r.WorkspaceID,
		ItemID:        r.ItemID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Quantity:      r.Quantity,
		Reason:        reason,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("Failed to publish event")
	}
}
