// Package holds manages soft holds: expiring reservation rows that claim
// capacity while a cart is open.
package holds

import (
	"context"
	"fmt"
	"time"

	"reservo/internal/domain"
	"reservo/internal/metrics"
	"reservo/internal/models"
	"reservo/internal/segment"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

type Service struct {
	tx           domain.TxManager
	items        domain.ItemRepository
	reservations domain.ReservationRepository
	clock        slotclock.Clock
	loc          *time.Location
	ttl          time.Duration
	logger       *zerolog.Logger
}

func NewService(tx domain.TxManager, items domain.ItemRepository, reservations domain.ReservationRepository,
	clock slotclock.Clock, loc *time.Location, ttl time.Duration, logger *zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = models.DefaultHoldTTL
	}
	if clock == nil {
		clock = slotclock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		tx:           tx,
		items:        items,
		reservations: reservations,
		clock:        clock,
		loc:          loc,
		ttl:          ttl,
		logger:       logger,
	}
}

// Acquire creates a hold for the user if the peak demand over [start, end)
// leaves room for quantity more units.
func (s *Service) Acquire(ctx context.Context, userID, itemID int64, start, end time.Time, quantity int64) (*models.Reservation, error) {
	if !start.Before(end) {
		return nil, domain.NewValidationError("end_time", "must be after start_time")
	}
	if quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}

	var hold *models.Reservation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.items.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Admits(start, end, s.loc) {
			return domain.NewValidationError("start_time", "outside the item's daily window")
		}

		now := s.clock.Now()
		existing, err := s.reservations.FindOverlapping(ctx, models.OverlapFilter{
			ItemID: itemID,
			Start:  start,
			End:    end,
			Now:    now,
		})
		if err != nil {
			return err
		}
		peak := segment.Peak(segment.FromReservations(existing), start, end)
		if peak+quantity > item.Quantity {
			return &domain.CapacityError{
				ItemID:    item.ID,
				ItemName:  item.Name,
				Start:     start,
				End:       end,
				Requested: quantity,
				Available: max(item.Quantity-peak, 0),
			}
		}

		expires := now.Add(s.ttl)
		hold = &models.Reservation{
			UserID:        userID,
			WorkspaceID:   item.WorkspaceID,
			ItemID:        itemID,
			StartTime:     start,
			EndTime:       end,
			Quantity:      quantity,
			InCart:        true,
			HoldExpiresAt: &expires,
		}
		return s.reservations.CreateReservation(ctx, hold)
	})
	if err != nil {
		metrics.IncHold("rejected", 1)
		return nil, err
	}

	metrics.IncHold("acquired", 1)
	s.logger.Debug().
		Int64("user_id", userID).
		Int64("item_id", itemID).
		Int64("hold_id", hold.ID).
		Msg("Hold acquired")
	return hold, nil
}

// Release drops every hold of the user on the given items.
func (s *Service) Release(ctx context.Context, userID int64, itemIDs []int64) (int64, error) {
	n, err := s.reservations.DeleteUserHolds(ctx, userID, itemIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to release holds of user %d: %w", userID, err)
	}
	metrics.IncHold("released", int(n))
	return n, nil
}

// Discard drops a single hold, used when the cart write that should follow
// Acquire fails.
func (s *Service) Discard(ctx context.Context, holdID int64) error {
	if err := s.reservations.DestroyReservation(ctx, holdID); err != nil {
		return fmt.Errorf("failed to discard hold %d: %w", holdID, err)
	}
	metrics.IncHold("released", 1)
	return nil
}
