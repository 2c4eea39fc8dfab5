// Package checkout commits a workspace's cart segments as confirmed
// reservations in one transaction.
package checkout

import (
	"context"
	"fmt"
	"time"

	"reservo/internal/cart"
	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/models"
	"reservo/internal/segment"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

// Result lists the reservations confirmed by a checkout.
type Result struct {
	WorkspaceID  int64                 `json:"workspace_id"`
	Reservations []*models.Reservation `json:"reservations"`
	// Converted counts reservations that were soft holds before the checkout.
	Converted int `json:"converted"`
}

type Engine struct {
	tx           domain.TxManager
	items        domain.ItemRepository
	reservations domain.ReservationRepository
	policy       domain.BlockingPolicy
	notifier     domain.NotificationSink
	reminders    domain.ReminderScheduler
	eventBus     domain.EventPublisher
	clock        slotclock.Clock
	loc          *time.Location
	logger       zerolog.Logger
}

type Deps struct {
	Tx           domain.TxManager
	Items        domain.ItemRepository
	Reservations domain.ReservationRepository
	Policy       domain.BlockingPolicy
	Notifier     domain.NotificationSink
	Reminders    domain.ReminderScheduler
	EventBus     domain.EventPublisher
	Clock        slotclock.Clock
	Location     *time.Location
}

func NewEngine(deps Deps, logger *zerolog.Logger) *Engine {
	if deps.Clock == nil {
		deps.Clock = slotclock.System()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Engine{
		tx:           deps.Tx,
		items:        deps.Items,
		reservations: deps.Reservations,
		policy:       deps.Policy,
		notifier:     deps.Notifier,
		reminders:    deps.Reminders,
		eventBus:     deps.EventBus,
		clock:        deps.Clock,
		loc:          deps.Location,
		logger:       logging.Component(logger, "checkout"),
	}
}

// run holds the per-transaction state of one checkout.
type run struct {
	userID      int64
	workspaceID int64
	now         time.Time
	items       map[int64]*models.Item
	blocked     *bool
	converted   map[int64]bool
	confirmed   []*models.Reservation
}

// Checkout confirms every merged segment of the workspace or none of them.
// On failure the returned *domain.CheckoutError carries one error per failed
// segment and the cart is left untouched. On success the workspace is
// cleared from the cart, and each reservation gets a notification and a
// start and end reminder.
func (e *Engine) Checkout(ctx context.Context, store *cart.Store, workspaceID int64) (*Result, error) {
	started := time.Now()

	byWorkspace, err := store.MergedSegmentsByWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	segs := byWorkspace[workspaceID]
	if len(segs) == 0 {
		return nil, domain.ErrEmptyCart
	}

	r := &run{
		userID:      store.UserID(),
		workspaceID: workspaceID,
		now:         e.clock.Now(),
		items:       make(map[int64]*models.Item),
		converted:   make(map[int64]bool),
	}

	err = e.tx.WithTx(ctx, func(ctx context.Context) error {
		var errs []error
		for _, seg := range segs {
			if err := e.commitSegment(ctx, r, seg); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return &domain.CheckoutError{WorkspaceID: workspaceID, Errors: errs}
		}

		itemIDs := make([]int64, 0, len(r.items))
		for id := range r.items {
			itemIDs = append(itemIDs, id)
		}
		released, err := e.reservations.DeleteUserHolds(ctx, r.userID, itemIDs)
		if err != nil {
			return err
		}
		if released > 0 {
			metrics.IncHold("released", int(released))
		}
		return nil
	})
	if err != nil {
		metrics.ObserveCheckout("failed", time.Since(started))
		e.logger.Info().Err(err).
			Int64("user_id", r.userID).
			Int64("workspace_id", workspaceID).
			Msg("Checkout rejected")
		return nil, err
	}
	metrics.ObserveCheckout("success", time.Since(started))

	if _, err := store.ClearWorkspace(ctx, workspaceID); err != nil {
		e.logger.Error().Err(err).
			Int64("user_id", r.userID).
			Int64("workspace_id", workspaceID).
			Msg("Failed to clear cart after checkout")
	}

	for _, res := range r.confirmed {
		e.afterConfirm(ctx, res, r.items[res.ItemID], r.converted[res.ID])
	}

	e.logger.Info().
		Int64("user_id", r.userID).
		Int64("workspace_id", workspaceID).
		Int("reservations", len(r.confirmed)).
		Int("converted", len(r.converted)).
		Msg("Checkout completed")

	return &Result{
		WorkspaceID:  workspaceID,
		Reservations: r.confirmed,
		Converted:    len(r.converted),
	}, nil
}

func (e *Engine) commitSegment(ctx context.Context, r *run, seg models.Segment) error {
	item, err := e.item(ctx, r, seg.ItemID)
	if err != nil {
		return err
	}

	if !seg.StartTime.Before(seg.EndTime) || seg.Quantity <= 0 {
		return domain.NewValidationError("segment", fmt.Sprintf("invalid time or quantity for %s", item.Name))
	}
	if !item.Admits(seg.StartTime, seg.EndTime, e.loc) {
		return domain.NewValidationError("start_time", fmt.Sprintf("%s is outside the daily window of %s", e.describe(seg), item.Name))
	}

	blocked, err := e.isBlocked(ctx, r)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("%w: workspace %d", domain.ErrBlockedUser, r.workspaceID)
	}

	filter := models.OverlapFilter{
		ItemID:         seg.ItemID,
		Start:          seg.StartTime,
		End:            seg.EndTime,
		Now:            r.now,
		ExcludeHoldsOf: r.userID,
	}
	existing, err := e.existingDemand(ctx, filter, seg.Quantity, item.Quantity)
	if err != nil {
		return err
	}
	if existing+seg.Quantity > item.Quantity {
		return &domain.CapacityError{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Start:     seg.StartTime,
			End:       seg.EndTime,
			Requested: seg.Quantity,
			Available: max(item.Quantity-existing, 0),
		}
	}

	res, err := e.convertHold(ctx, r, seg)
	if err != nil {
		return err
	}
	if res == nil {
		res = &models.Reservation{
			UserID:      r.userID,
			WorkspaceID: item.WorkspaceID,
			ItemID:      seg.ItemID,
			StartTime:   seg.StartTime,
			EndTime:     seg.EndTime,
			Quantity:    seg.Quantity,
		}
		if err := e.reservations.CreateReservation(ctx, res); err != nil {
			return err
		}
	}
	r.confirmed = append(r.confirmed, res)
	return nil
}

func (e *Engine) item(ctx context.Context, r *run, id int64) (*models.Item, error) {
	if item, ok := r.items[id]; ok {
		return item, nil
	}
	item, err := e.items.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	r.items[id] = item
	return item, nil
}

func (e *Engine) isBlocked(ctx context.Context, r *run) (bool, error) {
	if e.policy == nil {
		return false, nil
	}
	if r.blocked == nil {
		blocked, err := e.policy.BlockedFromReserving(ctx, r.userID, r.workspaceID)
		if err != nil {
			return false, err
		}
		r.blocked = &blocked
	}
	return *r.blocked, nil
}

// existingDemand returns the peak quantity already claimed over the filter's
// range. The plain sum is an upper bound of the peak, so the row scan only
// runs when the sum alone would reject the segment.
func (e *Engine) existingDemand(ctx context.Context, f models.OverlapFilter, requested, capacity int64) (int64, error) {
	sum, err := e.reservations.SumOverlapping(ctx, f)
	if err != nil {
		return 0, err
	}
	if sum+requested <= capacity {
		return sum, nil
	}
	rows, err := e.reservations.FindOverlapping(ctx, f)
	if err != nil {
		return 0, err
	}
	return segment.Peak(segment.FromReservations(rows), f.Start, f.End), nil
}

// convertHold turns the user's oldest unexpired hold covering seg into the
// confirmed reservation for seg. It returns nil when no hold covers it.
func (e *Engine) convertHold(ctx context.Context, r *run, seg models.Segment) (*models.Reservation, error) {
	holds, err := e.reservations.FindUserActiveHolds(ctx, r.userID, models.OverlapFilter{
		ItemID: seg.ItemID,
		Start:  seg.StartTime,
		End:    seg.EndTime,
		Now:    r.now,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range holds {
		if r.converted[h.ID] || !h.Covers(seg.StartTime, seg.EndTime) {
			continue
		}
		if err := e.reservations.ConvertHoldToConfirmed(ctx, h.ID, seg.StartTime, seg.EndTime, seg.Quantity); err != nil {
			return nil, err
		}
		r.converted[h.ID] = true

		h.StartTime, h.EndTime, h.Quantity = seg.StartTime, seg.EndTime, seg.Quantity
		h.InCart, h.HoldExpiresAt = false, nil
		return h, nil
	}
	return nil, nil
}

// afterConfirm runs the side effects of a committed reservation. They are
// fire-and-forget: failures are logged and counted.
func (e *Engine) afterConfirm(ctx context.Context, res *models.Reservation, item *models.Item, fromHold bool) {
	if fromHold {
		metrics.IncReservationConfirmed("hold")
	} else {
		metrics.IncReservationConfirmed("new")
	}

	log := e.logger.With().Int64("reservation_id", res.ID).Int64("user_id", res.UserID).Logger()

	if e.notifier != nil {
		id := res.ID
		msg := fmt.Sprintf("Reservation confirmed: %s x%d, %s", item.Name, res.Quantity, e.describeRange(res.StartTime, res.EndTime))
		if err := e.notifier.Notify(ctx, res.UserID, msg, &id); err != nil {
			metrics.IncNotificationFailure()
			log.Error().Err(err).Msg("Failed to create confirmation notification")
		}
	}

	if e.reminders != nil {
		for _, kind := range []string{models.ReminderKindStart, models.ReminderKindEnd} {
			if err := e.reminders.Schedule(ctx, res.ID, kind); err != nil {
				log.Error().Err(err).Str("kind", kind).Msg("Failed to schedule reminder")
			}
		}
	}

	if e.eventBus != nil {
		payload := events.ReservationEventPayload{
			ReservationID: res.ID,
			UserID:        res.UserID,
			WorkspaceID:   res.WorkspaceID,
			ItemID:        res.ItemID,
			StartTime:     res.StartTime,
			EndTime:       res.EndTime,
			Quantity:      res.Quantity,
		}
		if err := e.eventBus.PublishJSON(events.EventReservationConfirmed, payload); err != nil {
			log.Warn().Err(err).Msg("Failed to publish reservation event")
		}
	}
}

func (e *Engine) describe(seg models.Segment) string {
	return e.describeRange(seg.StartTime, seg.EndTime)
}

func (e *Engine) describeRange(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.In(e.loc).Format("2006-01-02 15:04"), end.In(e.loc).Format("2006-01-02 15:04"))
}
