// Package cart keeps a user's pending selections and folds them into demand
// segments.
package cart

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"reservo/internal/domain"
	"reservo/internal/models"
	"reservo/internal/segment"
)

// Key returns the storage key of a user's cart.
func Key(userID int64) string {
	return "cart:" + strconv.FormatInt(userID, 10)
}

// ClampQuantity bounds a requested quantity to the cart limits.
func ClampQuantity(q int64) int64 {
	return min(max(q, models.MinCartQuantity), models.MaxCartQuantity)
}

// Store is one user's cart on top of an injected storage. Concurrent
// mutations of the same cart are last-write-wins.
type Store struct {
	storage domain.CartStorage
	userID  int64
	key     string
}

func NewStore(storage domain.CartStorage, userID int64) *Store {
	return &Store{storage: storage, userID: userID, key: Key(userID)}
}

func (s *Store) UserID() int64 {
	return s.userID
}

// Entries returns the raw entries in insertion order.
func (s *Store) Entries(ctx context.Context) ([]models.CartEntry, error) {
	entries, err := s.storage.GetEntries(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart %s: %w", s.key, err)
	}
	return entries, nil
}

func (s *Store) save(ctx context.Context, entries []models.CartEntry) error {
	if err := s.storage.SetEntries(ctx, s.key, entries); err != nil {
		return fmt.Errorf("failed to save cart %s: %w", s.key, err)
	}
	return nil
}

// Add appends an entry with its quantity clamped to [1, 10].
func (s *Store) Add(ctx context.Context, entry models.CartEntry) error {
	if entry.ItemID == 0 {
		return domain.NewValidationError("item_id", "is required")
	}
	if entry.WorkspaceID == 0 {
		return domain.NewValidationError("workspace_id", "is required")
	}
	if !entry.StartTime.Before(entry.EndTime) {
		return domain.NewValidationError("end_time", "must be after start_time")
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		return err
	}
	entry.Quantity = ClampQuantity(entry.Quantity)
	return s.save(ctx, append(entries, entry))
}

// Update sets the quantity of the entry at index, clamped like Add.
func (s *Store) Update(ctx context.Context, index int, quantity int64) error {
	entries, err := s.Entries(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("%w: %d", domain.ErrInvalidIndex, index)
	}
	entries[index].Quantity = ClampQuantity(quantity)
	return s.save(ctx, entries)
}

func (s *Store) Remove(ctx context.Context, index int) error {
	entries, err := s.Entries(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("%w: %d", domain.ErrInvalidIndex, index)
	}
	return s.save(ctx, slices.Delete(entries, index, index+1))
}

// RemoveRange deletes the entries of the item and workspace that lie fully
// inside [start, end) and returns how many were removed.
func (s *Store) RemoveRange(ctx context.Context, itemID, workspaceID int64, start, end time.Time) (int, error) {
	return s.removeWhere(ctx, func(e models.CartEntry) bool {
		return e.ItemID == itemID && e.WorkspaceID == workspaceID &&
			!e.StartTime.Before(start) && !e.EndTime.After(end)
	})
}

// ClearWorkspace deletes every entry of the workspace.
func (s *Store) ClearWorkspace(ctx context.Context, workspaceID int64) (int, error) {
	return s.removeWhere(ctx, func(e models.CartEntry) bool {
		return e.WorkspaceID == workspaceID
	})
}

func (s *Store) removeWhere(ctx context.Context, match func(models.CartEntry) bool) (int, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return 0, err
	}
	kept := slices.DeleteFunc(slices.Clone(entries), match)
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(ctx, kept)
}

// TotalCount sums the raw entry quantities.
func (s *Store) TotalCount(ctx context.Context) (int64, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Quantity
	}
	return total, nil
}

// ReservationsCount is the number of merged segments across all workspaces.
func (s *Store) ReservationsCount(ctx context.Context) (int, error) {
	byWorkspace, err := s.MergedSegmentsByWorkspace(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, segs := range byWorkspace {
		n += len(segs)
	}
	return n, nil
}

type itemKey struct {
	workspaceID int64
	itemID      int64
}

// MergedSegmentsByWorkspace merges the entries of every item and groups the
// segments by workspace, each list sorted by item then start.
func (s *Store) MergedSegmentsByWorkspace(ctx context.Context) (map[int64][]models.Segment, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return MergeEntries(entries), nil
}

// MergeEntries groups entries by workspace and item and runs the sweep-line
// merge per item.
func MergeEntries(entries []models.CartEntry) map[int64][]models.Segment {
	grouped := make(map[itemKey][]models.CartEntry)
	for _, e := range entries {
		k := itemKey{workspaceID: e.WorkspaceID, itemID: e.ItemID}
		grouped[k] = append(grouped[k], e)
	}

	out := make(map[int64][]models.Segment)
	for k, group := range grouped {
		segs := segment.Merge(k.itemID, k.workspaceID, segment.FromCartEntries(group))
		if len(segs) > 0 {
			out[k.workspaceID] = append(out[k.workspaceID], segs...)
		}
	}
	for _, segs := range out {
		slices.SortFunc(segs, func(a, b models.Segment) int {
			return cmp.Or(cmp.Compare(a.ItemID, b.ItemID), a.StartTime.Compare(b.StartTime))
		})
	}
	return out
}
