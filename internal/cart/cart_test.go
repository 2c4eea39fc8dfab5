package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"reservo/internal/domain"
	"reservo/internal/models"
	"reservo/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2030, 4, 8, h, m, 0, 0, time.UTC)
}

func entry(item, ws int64, sh, sm, eh, em int, qty int64) models.CartEntry {
	return models.CartEntry{ItemID: item, WorkspaceID: ws, StartTime: at(sh, sm), EndTime: at(eh, em), Quantity: qty}
}

func newStore() *Store {
	return NewStore(repository.NewMemoryCartStorage(0), 7)
}

func TestStore_AddClamps(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.Add(ctx, entry(1, 1, 9, 0, 9, 15, 0)))
	require.NoError(t, s.Add(ctx, entry(1, 1, 9, 0, 9, 15, 50)))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Quantity)
	assert.Equal(t, int64(10), entries[1].Quantity)

	total, err := s.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
}

func TestStore_AddValidation(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	err := s.Add(ctx, entry(1, 1, 10, 0, 9, 0, 1))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Field)

	assert.ErrorIs(t, s.Add(ctx, entry(0, 1, 9, 0, 10, 0, 1)), domain.ErrValidation)
	assert.ErrorIs(t, s.Add(ctx, entry(1, 0, 9, 0, 10, 0, 1)), domain.ErrValidation)
}

func TestStore_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Add(ctx, entry(1, 1, 9, 0, 9, 15, 1)))
	require.NoError(t, s.Add(ctx, entry(2, 1, 9, 0, 9, 15, 1)))

	require.NoError(t, s.Update(ctx, 1, 4))
	assert.ErrorIs(t, s.Update(ctx, 2, 1), domain.ErrInvalidIndex)
	assert.ErrorIs(t, s.Update(ctx, -1, 1), domain.ErrInvalidIndex)

	require.NoError(t, s.Update(ctx, 0, 99))
	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), entries[0].Quantity)
	assert.Equal(t, int64(4), entries[1].Quantity)

	require.NoError(t, s.Remove(ctx, 0))
	assert.ErrorIs(t, s.Remove(ctx, 5), domain.ErrInvalidIndex)

	entries, err = s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ItemID)
}

func TestStore_RemoveRange(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Add(ctx, entry(1, 1, 9, 0, 9, 30, 1)))
	require.NoError(t, s.Add(ctx, entry(1, 1, 9, 15, 10, 15, 1)))
	require.NoError(t, s.Add(ctx, entry(1, 2, 9, 0, 9, 30, 1)))
	require.NoError(t, s.Add(ctx, entry(3, 1, 9, 0, 9, 30, 1)))

	removed, err := s.RemoveRange(ctx, 1, 1, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the entry fully inside the range goes")

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	removed, err = s.ClearWorkspace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err = s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].WorkspaceID)
}

func TestStore_MergedSegments(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Add(ctx, entry(5, 1, 9, 10, 9, 25, 1)))
	require.NoError(t, s.Add(ctx, entry(5, 1, 9, 0, 9, 15, 1)))
	require.NoError(t, s.Add(ctx, entry(2, 1, 14, 0, 15, 0, 3)))
	require.NoError(t, s.Add(ctx, entry(2, 1, 14, 0, 15, 0, 3)))
	require.NoError(t, s.Add(ctx, entry(8, 9, 8, 0, 8, 15, 1)))

	byWorkspace, err := s.MergedSegmentsByWorkspace(ctx)
	require.NoError(t, err)
	require.Len(t, byWorkspace, 2)

	ws1 := byWorkspace[1]
	require.Len(t, ws1, 4)
	assert.Equal(t, models.Segment{ItemID: 2, WorkspaceID: 1, StartTime: at(14, 0), EndTime: at(15, 0), Quantity: 6}, ws1[0])
	assert.Equal(t, models.Segment{ItemID: 5, WorkspaceID: 1, StartTime: at(9, 0), EndTime: at(9, 10), Quantity: 1}, ws1[1])
	assert.Equal(t, models.Segment{ItemID: 5, WorkspaceID: 1, StartTime: at(9, 10), EndTime: at(9, 15), Quantity: 2}, ws1[2])
	assert.Equal(t, models.Segment{ItemID: 5, WorkspaceID: 1, StartTime: at(9, 15), EndTime: at(9, 25), Quantity: 1}, ws1[3])
	assert.Len(t, byWorkspace[9], 1)

	count, err := s.ReservationsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

type brokenStorage struct {
	mock.Mock
}

func (m *brokenStorage) GetEntries(ctx context.Context, key string) ([]models.CartEntry, error) {
	args := m.Called(ctx, key)
	return nil, args.Error(1)
}

func (m *brokenStorage) SetEntries(ctx context.Context, key string, entries []models.CartEntry) error {
	return m.Called(ctx, key, entries).Error(0)
}

func TestStore_StorageErrors(t *testing.T) {
	storage := new(brokenStorage)
	storage.On("GetEntries", mock.Anything, "cart:7").Return(nil, errors.New("connection refused"))

	s := NewStore(storage, 7)
	_, err := s.TotalCount(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, s.Add(context.Background(), entry(1, 1, 9, 0, 10, 0, 1)))
	storage.AssertExpectations(t)
}

func TestClampQuantity(t *testing.T) {
	assert.Equal(t, int64(1), ClampQuantity(-3))
	assert.Equal(t, int64(7), ClampQuantity(7))
	assert.Equal(t, int64(10), ClampQuantity(11))
	assert.Equal(t, "cart:12", Key(12))
}
