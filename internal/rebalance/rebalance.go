// Package rebalance cancels reservations that no longer fit after an item's
// capacity was reduced.
package rebalance

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/models"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

// Plan walks reservations oldest first and keeps each one that fits into the
// remaining per-slot capacity. The result depends only on quantity and each
// reservation's range, quantity and creation order.
func Plan(quantity int64, reservations []*models.Reservation, loc *time.Location) (kept, cancelled []*models.Reservation) {
	ordered := slices.Clone(reservations)
	slices.SortStableFunc(ordered, func(a, b *models.Reservation) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	usage := make(map[int64]int64)
	for _, r := range ordered {
		fits := true
		for tick := range slotclock.Ticks(r.StartTime, r.EndTime, loc) {
			if usage[tick.UnixNano()]+r.Quantity > quantity {
				fits = false
				break
			}
		}
		if !fits {
			cancelled = append(cancelled, r)
			continue
		}
		for tick := range slotclock.Ticks(r.StartTime, r.EndTime, loc) {
			usage[tick.UnixNano()] += r.Quantity
		}
		kept = append(kept, r)
	}
	return kept, cancelled
}

type Result struct {
	ItemID    int64                 `json:"item_id"`
	Kept      int                   `json:"kept"`
	Cancelled []*models.Reservation `json:"cancelled"`
}

type Rebalancer struct {
	tx           domain.TxManager
	reservations domain.ReservationRepository
	notifier     domain.NotificationSink
	eventBus     domain.EventPublisher
	clock        slotclock.Clock
	loc          *time.Location
	logger       zerolog.Logger
}

func NewRebalancer(tx domain.TxManager, reservations domain.ReservationRepository, notifier domain.NotificationSink,
	eventBus domain.EventPublisher, clock slotclock.Clock, loc *time.Location, logger *zerolog.Logger) *Rebalancer {
	if clock == nil {
		clock = slotclock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Rebalancer{
		tx:           tx,
		reservations: reservations,
		notifier:     notifier,
		eventBus:     eventBus,
		clock:        clock,
		loc:          loc,
		logger:       logging.Component(logger, "rebalancer"),
	}
}

// Rebalance cancels the reservations of item that exceed its quantity,
// keeping the oldest ones. Loading, planning, cancelling and the notification
// rows run in one transaction so no checkout on the item interleaves. Bus
// events go out only after commit. A zero or negative quantity leaves
// everything untouched.
func (b *Rebalancer) Rebalance(ctx context.Context, item *models.Item) (*Result, error) {
	result := &Result{ItemID: item.ID}
	if item.Quantity <= 0 {
		return result, nil
	}

	txCtx, pending := events.WithDeferred(ctx)
	err := b.tx.WithTx(txCtx, func(ctx context.Context) error {
		active, err := b.reservations.FindActiveForCapacity(ctx, item.ID, b.clock.Now())
		if err != nil {
			return err
		}
		kept, cancelled := Plan(item.Quantity, active, b.loc)
		result.Kept = len(kept)
		result.Cancelled = cancelled

		for _, r := range cancelled {
			if err := b.reservations.DestroyReservation(ctx, r.ID); err != nil {
				return fmt.Errorf("failed to cancel reservation %d: %w", r.ID, err)
			}
		}
		b.notifyUsers(ctx, item, cancelled)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pending.Flush(); err != nil {
		b.logger.Warn().Err(err).Int64("item_id", item.ID).Msg("Failed to publish notification events")
	}

	if n := len(result.Cancelled); n > 0 {
		metrics.AddRebalanceCancellations(n)
		b.publish(result.Cancelled)
		b.logger.Info().
			Int64("item_id", item.ID).
			Int64("quantity", item.Quantity).
			Int("kept", result.Kept).
			Int("cancelled", n).
			Msg("Rebalanced item reservations")
	}
	return result, nil
}

// notifyUsers sends one message per affected user. Failures are logged and
// never abort the cancellation.
func (b *Rebalancer) notifyUsers(ctx context.Context, item *models.Item, cancelled []*models.Reservation) {
	if b.notifier == nil {
		return
	}

	byUser := make(map[int64][]*models.Reservation)
	var users []int64
	for _, r := range cancelled {
		if _, ok := byUser[r.UserID]; !ok {
			users = append(users, r.UserID)
		}
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	for _, userID := range users {
		rs := byUser[userID]
		var (
			msg string
			ref *int64
		)
		if len(rs) == 1 {
			id := rs[0].ID
			ref = &id
			msg = fmt.Sprintf("Your reservation of %s for %s - %s was cancelled because the item's capacity was reduced.",
				item.Name,
				rs[0].StartTime.In(b.loc).Format("2006-01-02 15:04"),
				rs[0].EndTime.In(b.loc).Format("2006-01-02 15:04"))
		} else {
			msg = fmt.Sprintf("%d of your reservations of %s were cancelled because the item's capacity was reduced.", len(rs), item.Name)
		}

		if err := b.notifier.Notify(ctx, userID, msg, ref); err != nil {
			metrics.IncNotificationFailure()
			b.logger.Error().Err(err).
				Int64("user_id", userID).
				Int64("item_id", item.ID).
				Msg("Failed to notify user about cancellation")
		}
	}
}

func (b *Rebalancer) publish(cancelled []*models.Reservation) {
	if b.eventBus == nil {
		return
	}
	for _, r := range cancelled {
		payload := events.ReservationEventPayload{
			ReservationID: r.ID,
			UserID:        r.UserID,
			WorkspaceID:   r.WorkspaceID,
			ItemID:        r.ItemID,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			Quantity:      r.Quantity,
			Reason:        "capacity reduced",
		}
		if err := b.eventBus.PublishJSON(events.EventReservationCancelled, payload); err != nil {
			b.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("Failed to publish cancellation")
		}
	}
}
