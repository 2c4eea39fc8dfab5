package repository

import (
	"context"
	"sync/atomic"
	"time"

	"reservo/internal/domain"
	"reservo/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCartStorage serves carts from the primary storage and switches to
// the fallback when the primary errors. Reads probe the primary again once
// the retry interval has passed.
type FailoverCartStorage struct {
	primary       domain.CartStorage
	fallback      domain.CartStorage
	logger        *zerolog.Logger
	retryInterval time.Duration
	isDown        atomic.Bool
	lastCheck     atomic.Int64
	now           func() time.Time
}

func NewFailoverCartStorage(primary, fallback domain.CartStorage, logger *zerolog.Logger) *FailoverCartStorage {
	return &FailoverCartStorage{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		retryInterval: time.Minute,
		now:           time.Now,
	}
}

func (r *FailoverCartStorage) markDown(err error) {
	if r.isDown.CompareAndSwap(false, true) {
		r.logger.Error().Err(err).Msg("Primary cart storage failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverCartStorage) shouldRetry() bool {
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > r.retryInterval
}

func (r *FailoverCartStorage) GetEntries(ctx context.Context, key string) ([]models.CartEntry, error) {
	if !r.isDown.Load() || r.shouldRetry() {
		entries, err := r.primary.GetEntries(ctx, key)
		if err == nil {
			if r.isDown.CompareAndSwap(true, false) {
				r.logger.Info().Msg("Primary cart storage recovered")
			}
			return entries, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetEntries(ctx, key)
}

func (r *FailoverCartStorage) SetEntries(ctx context.Context, key string, entries []models.CartEntry) error {
	if !r.isDown.Load() {
		err := r.primary.SetEntries(ctx, key, entries)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetEntries(ctx, key, entries)
}
