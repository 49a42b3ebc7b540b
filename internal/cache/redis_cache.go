package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"posinet/backend/internal/domain"
)

const (
	keyPrefix = "posinet:report:"
	// keyIndex is a set of every report key written, so Invalidate can drop
	// them without a SCAN over the keyspace.
	keyIndex = "posinet:report:keys"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) GetSummary(ctx context.Context, key string) (*domain.SalesSummary, bool, error) {
	var summary domain.SalesSummary
	found, err := c.get(ctx, "summary:"+key, &summary)
	if err != nil || !found {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisReportCache) SetSummary(ctx context.Context, key string, value domain.SalesSummary, ttl time.Duration) error {
	return c.set(ctx, "summary:"+key, value, ttl)
}

func (c *RedisReportCache) GetTopProducts(ctx context.Context, key string) ([]domain.TopProduct, bool, error) {
	var products []domain.TopProduct
	found, err := c.get(ctx, "top:"+key, &products)
	if err != nil || !found {
		return nil, false, err
	}
	return products, true, nil
}

func (c *RedisReportCache) SetTopProducts(ctx context.Context, key string, value []domain.TopProduct, ttl time.Duration) error {
	if value == nil {
		value = []domain.TopProduct{}
	}
	return c.set(ctx, "top:"+key, value, ttl)
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, keyIndex).Result()
	if err != nil {
		return err
	}
	keys = append(keys, keyIndex)
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisReportCache) get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	full := keyPrefix + key
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, full, payload, ttl)
	pipe.SAdd(ctx, keyIndex, full)
	_, err = pipe.Exec(ctx)
	return err
}
