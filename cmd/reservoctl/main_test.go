package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reservo/internal/client"
	"reservo/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunItemsUsesRedisCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/v1/workspaces/2/items", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []models.Item{{ID: 5, WorkspaceID: 2, Name: "Kayak", Quantity: 3}}})
	}))
	defer srv.Close()
	mr := miniredis.RunT(t)

	for range 2 {
		var out bytes.Buffer
		require.NoError(t, run(context.Background(),
			[]string{"-url", srv.URL, "-api-key", "secret", "-redis", mr.Addr(), "items", "2"}, &out))

		var items []models.Item
		require.NoError(t, json.Unmarshal(out.Bytes(), &items))
		require.Len(t, items, 1)
		assert.Equal(t, "Kayak", items[0].Name)
	}
	assert.Equal(t, 1, calls)
}

func TestRunAddAndCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4", r.Header.Get("X-User-ID"))
		switch r.URL.Path {
		case "/api/v1/cart/entries":
			var req client.AddEntryRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(7), req.ItemID)
			assert.Equal(t, int64(1), req.Quantity)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"entry": models.CartEntry{ItemID: 7, Quantity: 1}})
		case "/api/v1/workspaces/1/checkout":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"checkout failed","reasons":["capacity exceeded: Kayak"]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, run(context.Background(),
		[]string{"-url", srv.URL, "-user", "4", "add", "7", "2030-04-08T09:00:00Z", "2030-04-08T10:00:00Z"}, &out))
	var entry models.CartEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, int64(7), entry.ItemID)

	err := run(context.Background(), []string{"-url", srv.URL, "-user", "4", "checkout", "1"}, &out)
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"capacity exceeded: Kayak"}, apiErr.Reasons)
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"checkout without user", []string{"checkout", "1"}},
		{"bad id", []string{"items", "abc"}},
		{"bad quantity", []string{"availability", "1", "2030-04-08", "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(context.Background(), append([]string{"-url", "http://127.0.0.1:1"}, tt.args...), &out))
			assert.Empty(t, out.String())
		})
	}
}
