// Package cache holds Redis-backed read caches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/redis/go-redis/v9"
)

const couponPrefix = "coupon:code:"

// KV is the subset of the Redis client the caches use. *redis.Client satisfies it.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Coupons caches coupons by normalized code. Entries expire after ttl so a missed
// invalidation heals on its own.
type Coupons struct {
	rdb KV
	ttl time.Duration
}

func NewCoupons(rdb KV, ttl time.Duration) *Coupons {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Coupons{rdb: rdb, ttl: ttl}
}

func (c *Coupons) Get(ctx context.Context, code string) (model.Coupon, bool, error) {
	raw, err := c.rdb.Get(ctx, couponPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Coupon{}, false, nil
	}
	if err != nil {
		return model.Coupon{}, false, err
	}
	var out model.Coupon
	if err := json.Unmarshal(raw, &out); err != nil {
		// Drop undecodable entries so the next read repopulates.
		_ = c.rdb.Del(ctx, couponPrefix+code).Err()
		return model.Coupon{}, false, nil
	}
	return out, true, nil
}

func (c *Coupons) Set(ctx context.Context, cp model.Coupon) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, couponPrefix+cp.Code, raw, c.ttl).Err()
}

func (c *Coupons) Invalidate(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, couponPrefix+code).Err()
}
