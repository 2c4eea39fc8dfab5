package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"reservo/internal/availability"
	"reservo/internal/cart"
	"reservo/internal/checkout"
	"reservo/internal/config"
	"reservo/internal/database"
	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/holds"
	"reservo/internal/models"
	"reservo/internal/notify"
	"reservo/internal/rebalance"
	"reservo/internal/repository"
	"reservo/internal/service"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2030, 4, 8, 7, 0, 0, 0, time.UTC)

type apiFixture struct {
	db      *database.DB
	carts   domain.CartStorage
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithCarts(t, repository.NewMemoryCartStorage(0))
}

func newAPIFixtureWithCarts(t *testing.T, carts domain.CartStorage) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := slotclock.Fixed(testNow)
	bus := events.NewEventBus()
	sink := notify.NewSink(db, bus, &logger)
	policy := service.NewPenaltyPolicy(db, config.PolicyConfig{Blacklist: []int64{666}}, clock, &logger)
	rebalancer := rebalance.NewRebalancer(db, db, sink, bus, clock, time.UTC, &logger)

	svc := Services{
		Items:        service.NewItemService(db, db, rebalancer, &logger),
		Reservations: service.NewReservationService(db, bus, &logger),
		Availability: availability.NewCalculator(db, clock),
		Holds:        holds.NewService(db, db, db, clock, time.UTC, 15*time.Minute, &logger),
		Pruner:       holds.NewPruner(db, clock, time.UTC, &logger),
		Checkout: checkout.NewEngine(checkout.Deps{
			Tx:           db,
			Items:        db,
			Reservations: db,
			Policy:       policy,
			Notifier:     sink,
			Reminders:    notify.NewReminderScheduler(db, db, time.Hour, 15*time.Minute),
			EventBus:     bus,
			Clock:        clock,
			Location:     time.UTC,
		}, &logger),
		Notifications: db,
		Carts:         carts,
	}

	srv := NewHTTPServer(config.APIConfig{}, svc, time.UTC, 30, clock, &logger)
	return &apiFixture{db: db, carts: carts, handler: srv.Handler()}
}

func (f *apiFixture) item(t *testing.T, quantity int64) *models.Item {
	t.Helper()
	item := &models.Item{WorkspaceID: 1, Name: fmt.Sprintf("Projector-%d", quantity), Quantity: quantity, IsActive: true}
	require.NoError(t, f.db.CreateItem(context.Background(), item))
	return item
}

func (f *apiFixture) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set(userIDHeader, fmt.Sprint(userID))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func addBody(item *models.Item, start, end string, qty int64) addEntryRequest {
	return addEntryRequest{ItemID: item.ID, StartTime: start, EndTime: end, Quantity: qty}
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCartRequiresUser(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/cart", 0, nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", http.NoBody)
	req.Header.Set(userIDHeader, "abc")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddEntryAndCheckout(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 2)

	rec := f.do(t, http.MethodPost, "/api/v1/cart/entries", 7, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T10:00:00Z", 2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/cart/entries", 8, addBody(item, "2030-04-08T09:30:00Z", "2030-04-08T09:45:00Z", 1))
	assert.Equal(t, http.StatusConflict, rec.Code, "held units are not available to others")

	rec = f.do(t, http.MethodGet, "/api/v1/cart", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cartResp struct {
		Entries           []models.CartEntry `json:"entries"`
		TotalCount        int64              `json:"total_count"`
		ReservationsCount int                `json:"reservations_count"`
	}
	decode(t, rec, &cartResp)
	assert.Len(t, cartResp.Entries, 1)
	assert.Equal(t, int64(2), cartResp.TotalCount)
	assert.Equal(t, 1, cartResp.ReservationsCount)

	rec = f.do(t, http.MethodPost, "/api/v1/workspaces/1/checkout", 7, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result checkout.Result
	decode(t, rec, &result)
	require.Len(t, result.Reservations, 1)
	assert.Equal(t, 1, result.Converted)

	rec = f.do(t, http.MethodGet, "/api/v1/notifications", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decode(t, rec, &notes)
	assert.Len(t, notes.Notifications, 1)

	rec = f.do(t, http.MethodPost, "/api/v1/workspaces/1/checkout", 7, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cart was cleared for the workspace")
}

func TestCartTotalsCountRawEntries(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 5)

	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/api/v1/cart/entries", 9, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T09:15:00Z", 1)).Code)
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/api/v1/cart/entries", 9, addBody(item, "2030-04-08T09:10:00Z", "2030-04-08T09:25:00Z", 1)).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/cart", 9, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cartResp struct {
		Entries           []models.CartEntry `json:"entries"`
		TotalCount        int64              `json:"total_count"`
		ReservationsCount int                `json:"reservations_count"`
	}
	decode(t, rec, &cartResp)
	assert.Len(t, cartResp.Entries, 2)
	assert.Equal(t, int64(2), cartResp.TotalCount, "overlapping entries are counted once each")

	store := cart.NewStore(f.carts, 9)
	count, err := store.ReservationsCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, count, cartResp.ReservationsCount)
}

// brokenCartStorage reads like an empty cart and rejects every write.
type brokenCartStorage struct {
	repository.MemoryCartStorage
}

func (b *brokenCartStorage) SetEntries(context.Context, string, []models.CartEntry) error {
	return errors.New("cart storage unavailable")
}

func TestAddEntryDiscardsHoldWhenCartWriteFails(t *testing.T) {
	f := newAPIFixtureWithCarts(t, &brokenCartStorage{})
	item := f.item(t, 1)

	rec := f.do(t, http.MethodPost, "/api/v1/cart/entries", 11, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T10:00:00Z", 1))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	active, err := f.db.FindActiveForCapacity(context.Background(), item.ID, testNow)
	require.NoError(t, err)
	assert.Empty(t, active, "hold is dropped with the failed cart write")
}

func TestCheckoutBlockedUser(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 2)

	rec := f.do(t, http.MethodPost, "/api/v1/cart/entries", 666, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T10:00:00Z", 1))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/workspaces/1/checkout", 666, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body struct {
		Reasons []string `json:"reasons"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Reasons, 1)
}

func TestCartEntryEditing(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 20)

	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/api/v1/cart/entries", 3, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T09:30:00Z", 1)).Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPatch, "/api/v1/cart/entries/0", 3, quantityRequest{Quantity: 4}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/api/v1/cart/entries/5", 3, quantityRequest{Quantity: 4}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/api/v1/cart/entries/0", 3, map[string]any{"qty": 1}).Code)

	rec := f.do(t, http.MethodDelete, "/api/v1/cart/workspaces/1", 3, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared map[string]int
	decode(t, rec, &cleared)
	assert.Equal(t, 1, cleared["removed"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/v1/cart/entries/0", 3, nil).Code)
}

func TestPruneEvictsUncoveredEntries(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 5)

	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/api/v1/cart/entries", 4, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T09:30:00Z", 1)).Code)

	// No hold backs this entry.
	store := cart.NewStore(f.carts, 4)
	require.NoError(t, store.Add(context.Background(), models.CartEntry{
		ItemID:      item.ID,
		WorkspaceID: item.WorkspaceID,
		StartTime:   time.Date(2030, 4, 8, 14, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2030, 4, 8, 15, 0, 0, 0, time.UTC),
		Quantity:    1,
	}))

	rec := f.do(t, http.MethodPost, "/api/v1/cart/prune", 4, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pruned map[string]int
	decode(t, rec, &pruned)
	assert.Equal(t, 1, pruned["evicted"])

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 9, entries[0].StartTime.Hour())
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 3)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/items/%d/availability?date=2030-04-08&quantity=1", item.ID), 0, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Slots []models.Slot `json:"slots"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Slots, 96)
	assert.False(t, resp.Slots[0].WithinWindow, "slots before now are outside the horizon")
	assert.True(t, resp.Slots[40].Available)

	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/items/%d/availability?date=08.04.2030", item.ID), 0, nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/items/%d/availability", item.ID), 0, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, http.MethodGet, "/api/v1/items/999/availability?date=2030-04-08", 0, nil).Code)
}

func TestUpdateQuantityRebalances(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 2)

	for _, user := range []int64{1, 2} {
		require.Equal(t, http.StatusCreated,
			f.do(t, http.MethodPost, "/api/v1/cart/entries", user, addBody(item, "2030-04-08T09:00:00Z", "2030-04-08T10:00:00Z", 1)).Code)
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/workspaces/1/checkout", user, nil).Code)
	}

	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/items/%d/quantity", item.ID), 0, quantityRequest{Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result rebalance.Result
	decode(t, rec, &result)
	assert.Equal(t, 1, result.Kept)
	require.Len(t, result.Cancelled, 1)
	assert.Equal(t, int64(2), result.Cancelled[0].UserID)

	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/items/%d/quantity", item.ID), 0, quantityRequest{Quantity: -1}).Code)
}

func TestCancelReservation(t *testing.T) {
	f := newAPIFixture(t)
	item := f.item(t, 1)

	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/api/v1/cart/entries", 5, addBody(item, "2030-04-08T11:00:00Z", "2030-04-08T12:00:00Z", 1)).Code)
	rec := f.do(t, http.MethodPost, "/api/v1/workspaces/1/checkout", 5, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var result checkout.Result
	decode(t, rec, &result)
	id := result.Reservations[0].ID

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/reservations/%d", id), 6, nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/reservations/%d", id), 5, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/reservations/%d", id), 5, nil).Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("x", "bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrInvalidIndex), http.StatusBadRequest},
		{domain.ErrEmptyCart, http.StatusBadRequest},
		{&domain.NotFoundError{Entity: "item", ID: 1}, http.StatusNotFound},
		{&domain.CapacityError{ItemID: 1}, http.StatusConflict},
		{&domain.CheckoutError{Errors: []error{&domain.CapacityError{}, domain.ErrBlockedUser}}, http.StatusForbidden},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}
