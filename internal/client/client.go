// Package client calls the reservo HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"reservo/internal/models"

	"github.com/redis/go-redis/v9"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string   `json:"error"`
	Reasons    []string `json:"reasons"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a capacity conflict.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache caches read-only lookups for ttl.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

type AvailabilityResponse struct {
	ItemID int64         `json:"item_id"`
	Date   string        `json:"date"`
	Slots  []models.Slot `json:"slots"`
}

// Availability fetches the slot grid of an item for date (YYYY-MM-DD).
func (c *Client) Availability(ctx context.Context, itemID int64, date string, quantity int64) (*AvailabilityResponse, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("quantity", strconv.FormatInt(quantity, 10))
	endpoint := fmt.Sprintf("%s/api/v1/items/%d/availability?%s", c.baseURL, itemID, q.Encode())
	cacheKey := fmt.Sprintf("availability:%d:%s:%d", itemID, date, quantity)

	var resp AvailabilityResponse
	if c.readCache(ctx, cacheKey, &resp) {
		return &resp, nil
	}
	if err := c.do(ctx, http.MethodGet, endpoint, 0, nil, &resp); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return &resp, nil
}

func (c *Client) ListItems(ctx context.Context, workspaceID int64) ([]models.Item, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workspaces/%d/items", c.baseURL, workspaceID)
	cacheKey := fmt.Sprintf("items:%d", workspaceID)

	var wrap struct {
		Items []models.Item `json:"items"`
	}
	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Items, nil
	}
	if err := c.do(ctx, http.MethodGet, endpoint, 0, nil, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Items, nil
}

type AddEntryRequest struct {
	ItemID    int64  `json:"item_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Quantity  int64  `json:"quantity"`
}

// AddToCart holds the units and appends the entry to the user's cart.
func (c *Client) AddToCart(ctx context.Context, userID int64, req AddEntryRequest) (*models.CartEntry, error) {
	var resp struct {
		Entry models.CartEntry `json:"entry"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/cart/entries", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Entry, nil
}

type CheckoutResult struct {
	WorkspaceID  int64                `json:"workspace_id"`
	Reservations []models.Reservation `json:"reservations"`
	Converted    int                  `json:"converted"`
}

func (c *Client) Checkout(ctx context.Context, userID, workspaceID int64) (*CheckoutResult, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workspaces/%d/checkout", c.baseURL, workspaceID)
	var resp CheckoutResult
	if err := c.do(ctx, http.MethodPost, endpoint, userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CancelReservation(ctx context.Context, userID, reservationID int64) error {
	endpoint := fmt.Sprintf("%s/api/v1/reservations/%d", c.baseURL, reservationID)
	return c.do(ctx, http.MethodDelete, endpoint, userID, nil, nil)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) do(ctx context.Context, method, endpoint string, userID int64, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
