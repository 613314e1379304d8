package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenCache keeps resolved device tokens in Redis so a delivery run does not
// hit Postgres once per frame for devices that recur across runs.
type TokenCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTokenCache(client *redis.Client, ttl time.Duration) *TokenCache {
	return &TokenCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *TokenCache) Close() error {
	return c.client.Close()
}

// GetToken returns the cached hexadecimal token for a device, or "" on a
// cache miss.
func (c *TokenCache) GetToken(ctx context.Context, deviceID uint64) (string, error) {
	token, err := c.client.Get(ctx, tokenKey(deviceID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// SetToken stores a device's hexadecimal token with a TTL.
func (c *TokenCache) SetToken(ctx context.Context, deviceID uint64, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return c.client.SetEX(ctx, tokenKey(deviceID), token, ttl).Err()
}

func tokenKey(deviceID uint64) string {
	return "apns:device:token:" + strconv.FormatUint(deviceID, 10)
}
