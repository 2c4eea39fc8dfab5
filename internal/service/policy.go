package service

import (
	"context"
	"fmt"

	"reservo/internal/config"
	"reservo/internal/domain"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

// PenaltyPolicy blocks blacklisted users and users with too many recent
// no-shows in a workspace.
type PenaltyPolicy struct {
	repo         domain.ReservationRepository
	blacklistMap map[int64]bool
	threshold    int
	windowDays   int
	clock        slotclock.Clock
	logger       *zerolog.Logger
}

func NewPenaltyPolicy(repo domain.ReservationRepository, cfg config.PolicyConfig, clock slotclock.Clock, logger *zerolog.Logger) *PenaltyPolicy {
	blacklistMap := make(map[int64]bool)
	for _, id := range cfg.Blacklist {
		blacklistMap[id] = true
	}
	if clock == nil {
		clock = slotclock.System()
	}
	return &PenaltyPolicy{
		repo:         repo,
		blacklistMap: blacklistMap,
		threshold:    cfg.NoShowThreshold,
		windowDays:   cfg.NoShowWindowDays,
		clock:        clock,
		logger:       logger,
	}
}

func (p *PenaltyPolicy) IsBlacklisted(userID int64) bool {
	return p.blacklistMap[userID]
}

func (p *PenaltyPolicy) BlockedFromReserving(ctx context.Context, userID, workspaceID int64) (bool, error) {
	if p.IsBlacklisted(userID) {
		return true, nil
	}
	if p.threshold <= 0 {
		return false, nil
	}

	since := p.clock.Now().AddDate(0, 0, -p.windowDays)
	n, err := p.repo.CountNoShows(ctx, userID, workspaceID, since)
	if err != nil {
		return false, fmt.Errorf("failed to count no-shows of user %d: %w", userID, err)
	}
	if n >= p.threshold {
		p.logger.Debug().
			Int64("user_id", userID).
			Int64("workspace_id", workspaceID).
			Int("no_shows", n).
			Msg("User blocked by no-show policy")
		return true, nil
	}
	return false, nil
}
