package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reservo/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v1/items/4/availability", r.URL.Path)
		assert.Equal(t, "2030-04-08", r.URL.Query().Get("date"))
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		_ = json.NewEncoder(w).Encode(AvailabilityResponse{ItemID: 4, Date: "2030-04-08", Slots: []models.Slot{{Available: true}}})
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := New(srv.URL, "k", "e")
	c.UseRedisCache(rdb, time.Minute)

	for range 2 {
		resp, err := c.Availability(context.Background(), 4, "2030-04-08", 1)
		require.NoError(t, err)
		require.Len(t, resp.Slots, 1)
		assert.True(t, resp.Slots[0].Available)
	}
	assert.Equal(t, int32(1), calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err := c.Availability(context.Background(), 4, "2030-04-08", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCheckoutConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12", r.Header.Get("X-User-ID"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"checkout failed","reasons":["capacity exceeded: Projector"]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "").Checkout(context.Background(), 12, 1)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"capacity exceeded: Projector"}, apiErr.Reasons)
}

func TestAddToCartAndCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req AddEntryRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"entry": models.CartEntry{ItemID: req.ItemID, WorkspaceID: 1, Quantity: req.Quantity},
			})
		case http.MethodDelete:
			assert.Equal(t, "/api/v1/reservations/7", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", "")
	entry, err := c.AddToCart(context.Background(), 3, AddEntryRequest{ItemID: 2, StartTime: "2030-04-08T09:00:00Z", EndTime: "2030-04-08T10:00:00Z", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Quantity)

	assert.NoError(t, c.CancelReservation(context.Background(), 3, 7))
}
