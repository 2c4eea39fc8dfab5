package holds

import (
	"context"
	"time"

	"reservo/internal/cart"
	"reservo/internal/domain"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/models"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

// Pruner removes cart ranges that the user's active holds no longer cover.
type Pruner struct {
	reservations domain.ReservationRepository
	clock        slotclock.Clock
	loc          *time.Location
	logger       zerolog.Logger
}

func NewPruner(reservations domain.ReservationRepository, clock slotclock.Clock, loc *time.Location, logger *zerolog.Logger) *Pruner {
	if clock == nil {
		clock = slotclock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Pruner{
		reservations: reservations,
		clock:        clock,
		loc:          loc,
		logger:       logging.Component(logger, "hold-pruner"),
	}
}

// block is a run of contiguous segments of one item: the time range the
// original cart entries span.
type block struct {
	itemID      int64
	workspaceID int64
	start       time.Time
	end         time.Time
	covered     bool
}

// Prune checks every merged segment of the cart against the user's active
// holds and evicts the whole contiguous range of any segment that is not
// covered on every tick. It returns the number of removed entries.
func (p *Pruner) Prune(ctx context.Context, store *cart.Store) (int, error) {
	byWorkspace, err := store.MergedSegmentsByWorkspace(ctx)
	if err != nil {
		return 0, err
	}

	now := p.clock.Now()
	var blocks []*block
	for _, segs := range byWorkspace {
		var cur *block
		for _, seg := range segs {
			if cur == nil || cur.itemID != seg.ItemID || !cur.end.Equal(seg.StartTime) {
				cur = &block{itemID: seg.ItemID, workspaceID: seg.WorkspaceID, start: seg.StartTime, covered: true}
				blocks = append(blocks, cur)
			}
			cur.end = seg.EndTime

			if !cur.covered {
				continue
			}
			ok, err := p.fullyCovered(ctx, store.UserID(), seg, now)
			if err != nil {
				return 0, err
			}
			cur.covered = ok
		}
	}

	removed := 0
	for _, b := range blocks {
		if b.covered {
			continue
		}
		n, err := store.RemoveRange(ctx, b.itemID, b.workspaceID, b.start, b.end)
		if err != nil {
			return removed, err
		}
		removed += n
		metrics.IncCartEviction()
		p.logger.Info().
			Int64("user_id", store.UserID()).
			Int64("item_id", b.itemID).
			Time("start", b.start).
			Time("end", b.end).
			Int("entries", n).
			Msg("Evicted cart range without hold coverage")
	}
	return removed, nil
}

// fullyCovered reports whether every tick of seg has at least seg.Quantity
// units held by the user.
func (p *Pruner) fullyCovered(ctx context.Context, userID int64, seg models.Segment, now time.Time) (bool, error) {
	holds, err := p.reservations.FindUserActiveHolds(ctx, userID, models.OverlapFilter{
		ItemID: seg.ItemID,
		Start:  seg.StartTime,
		End:    seg.EndTime,
		Now:    now,
	})
	if err != nil {
		return false, err
	}

	coverage := make(map[int64]int64)
	for _, h := range holds {
		for tick := range slotclock.Ticks(h.StartTime, h.EndTime, p.loc) {
			coverage[tick.UnixNano()] += h.Quantity
		}
	}
	for tick := range slotclock.Ticks(seg.StartTime, seg.EndTime, p.loc) {
		if coverage[tick.UnixNano()] < seg.Quantity {
			return false, nil
		}
	}
	return true, nil
}
