package service

import (
	"context"
	"time"

	"reservo/internal/models"
	"reservo/internal/rebalance"

	"github.com/stretchr/testify/mock"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemRepository) ListItemsByWorkspace(ctx context.Context, workspaceID int64) ([]*models.Item, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Item), args.Error(1)
}

func (m *MockItemRepository) CreateItem(ctx context.Context, item *models.Item) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockItemRepository) UpdateItemQuantity(ctx context.Context, id int64, quantity int64) error {
	return m.Called(ctx, id, quantity).Error(0)
}

type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) reservations(args mock.Arguments) ([]*models.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) CreateReservation(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockReservationRepository) DestroyReservation(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReservationRepository) SumOverlapping(ctx context.Context, f models.OverlapFilter) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReservationRepository) FindOverlapping(ctx context.Context, f models.OverlapFilter) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, f))
}

func (m *MockReservationRepository) FindActiveForCapacity(ctx context.Context, itemID int64, now time.Time) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, itemID, now))
}

func (m *MockReservationRepository) FindUserActiveHolds(ctx context.Context, userID int64, f models.OverlapFilter) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, userID, f))
}

func (m *MockReservationRepository) ConvertHoldToConfirmed(ctx context.Context, id int64, start, end time.Time, quantity int64) error {
	return m.Called(ctx, id, start, end, quantity).Error(0)
}

func (m *MockReservationRepository) DeleteExpiredHolds(ctx context.Context, now time.Time) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, now))
}

func (m *MockReservationRepository) DeleteUserHolds(ctx context.Context, userID int64, itemIDs []int64) (int64, error) {
	args := m.Called(ctx, userID, itemIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReservationRepository) MarkNoShow(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReservationRepository) RecordReturn(ctx context.Context, id int64, count int64) error {
	return m.Called(ctx, id, count).Error(0)
}

func (m *MockReservationRepository) CountNoShows(ctx context.Context, userID, workspaceID int64, since time.Time) (int, error) {
	args := m.Called(ctx, userID, workspaceID, since)
	return args.Int(0), args.Error(1)
}

type MockRebalancer struct {
	mock.Mock
}

func (m *MockRebalancer) Rebalance(ctx context.Context, item *models.Item) (*rebalance.Result, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rebalance.Result), args.Error(1)
}
