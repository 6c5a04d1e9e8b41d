package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/redis/go-redis/v9"
)

type fakeKV struct {
	data    map[string]string
	ttl     map[string]time.Duration
	deleted []string
	getErr  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return redis.NewStatusResult("", errors.New("unsupported value type"))
	}
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
		delete(f.data, k)
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(n, nil)
}

func TestCouponsSetGetInvalidate(t *testing.T) {
	kv := newFakeKV()
	c := NewCoupons(kv, 2*time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "SAVE10"); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	in := model.Coupon{ID: "c-1", Code: "SAVE10", DiscountType: model.DiscountPercentage, DiscountValue: 10, UsedCount: 3}
	if err := c.Set(ctx, in); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if kv.ttl["coupon:code:SAVE10"] != 2*time.Minute {
		t.Fatalf("ttl = %v", kv.ttl["coupon:code:SAVE10"])
	}

	got, ok, err := c.Get(ctx, "SAVE10")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != "c-1" || got.DiscountValue != 10 || got.UsedCount != 3 {
		t.Fatalf("got %+v", got)
	}

	if err := c.Invalidate(ctx, "SAVE10"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "SAVE10"); ok {
		t.Fatal("entry survived invalidation")
	}
}

func TestCouponsDefaultTTL(t *testing.T) {
	kv := newFakeKV()
	if err := NewCoupons(kv, 0).Set(context.Background(), model.Coupon{Code: "X1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if kv.ttl["coupon:code:X1"] != time.Minute {
		t.Fatalf("ttl = %v, want 1m", kv.ttl["coupon:code:X1"])
	}
}

func TestCouponsDropsUndecodableEntry(t *testing.T) {
	kv := newFakeKV()
	kv.data["coupon:code:BROKEN"] = "{not json"
	c := NewCoupons(kv, time.Minute)

	if _, ok, err := c.Get(context.Background(), "BROKEN"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if _, still := kv.data["coupon:code:BROKEN"]; still || len(kv.deleted) != 1 {
		t.Fatalf("undecodable entry not evicted: deleted=%v", kv.deleted)
	}
}

func TestCouponsSurfacesRedisErrors(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection reset")
	if _, ok, err := NewCoupons(kv, time.Minute).Get(context.Background(), "SAVE10"); ok || err == nil {
		t.Fatalf("expected error, got ok=%v err=%v", ok, err)
	}
}
