package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reservo/internal/config"
	"reservo/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisCartStorage keeps each cart as a JSON list under its key. Every write
// refreshes the key's TTL.
type RedisCartStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis section of the config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisCartStorage(client *redis.Client, ttl time.Duration) *RedisCartStorage {
	return &RedisCartStorage{client: client, ttl: ttl}
}

func (r *RedisCartStorage) GetEntries(ctx context.Context, key string) ([]models.CartEntry, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart from redis: %w", err)
	}

	var entries []models.CartEntry
	if err := json.Unmarshal(val, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart: %w", err)
	}
	return entries, nil
}

// SetEntries stores entries under key. An empty list deletes the key.
func (r *RedisCartStorage) SetEntries(ctx context.Context, key string, entries []models.CartEntry) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if len(entries) == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete cart from redis: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cart in redis: %w", err)
	}
	return nil
}

// Ping checks the connection to redis.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
