package holds

import (
	"context"
	"time"

	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/models"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

// Sweeper periodically deletes expired holds.
type Sweeper struct {
	reservations domain.ReservationRepository
	eventBus     domain.EventPublisher
	clock        slotclock.Clock
	interval     time.Duration
	logger       zerolog.Logger
}

func NewSweeper(reservations domain.ReservationRepository, eventBus domain.EventPublisher, clock slotclock.Clock, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = models.DefaultHoldSweepInterval
	}
	if clock == nil {
		clock = slotclock.System()
	}
	return &Sweeper{
		reservations: reservations,
		eventBus:     eventBus,
		clock:        clock,
		interval:     interval,
		logger:       logging.Component(logger, "hold-sweeper"),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("Hold sweeper started")
	defer s.logger.Info().Msg("Hold sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Hold sweep failed")
			}
		}
	}
}

// Sweep deletes holds expired at the current instant and returns how many
// were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.reservations.DeleteExpiredHolds(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	metrics.IncHold("expired", len(expired))
	for _, r := range expired {
		if s.eventBus == nil {
			break
		}
		payload := events.ReservationEventPayload{
			ReservationID: r.ID,
			UserID:        r.UserID,
			WorkspaceID:   r.WorkspaceID,
			ItemID:        r.ItemID,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			Quantity:      r.Quantity,
			Reason:        "hold expired",
		}
		if err := s.eventBus.PublishJSON(events.EventHoldExpired, payload); err != nil {
			s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("Failed to publish hold expiry")
		}
	}
	s.logger.Debug().Int("count", len(expired)).Msg("Expired holds removed")
	return len(expired), nil
}
