package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"reservo/internal/models"
)

type memoryCart struct {
	entries   []models.CartEntry
	expiresAt time.Time
}

// MemoryCartStorage keeps carts in process memory. A zero TTL keeps carts forever.
type MemoryCartStorage struct {
	carts sync.Map
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCartStorage(ttl time.Duration) *MemoryCartStorage {
	return &MemoryCartStorage{ttl: ttl, now: time.Now}
}

func (r *MemoryCartStorage) GetEntries(_ context.Context, key string) ([]models.CartEntry, error) {
	val, ok := r.carts.Load(key)
	if !ok {
		return nil, nil
	}
	cart := val.(*memoryCart)
	if !cart.expiresAt.IsZero() && r.now().After(cart.expiresAt) {
		r.carts.CompareAndDelete(key, val)
		return nil, nil
	}
	return slices.Clone(cart.entries), nil
}

func (r *MemoryCartStorage) SetEntries(_ context.Context, key string, entries []models.CartEntry) error {
	if len(entries) == 0 {
		r.carts.Delete(key)
		return nil
	}
	cart := &memoryCart{entries: slices.Clone(entries)}
	if r.ttl > 0 {
		cart.expiresAt = r.now().Add(r.ttl)
	}
	r.carts.Store(key, cart)
	return nil
}
