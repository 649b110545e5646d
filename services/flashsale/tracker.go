package flashsale

import (
	"context"
	"errors"
	"strconv"

	"creatorhub-platform/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

type Counts struct {
	Views       int64 `json:"views"`
	Conversions int64 `json:"conversions"`
}

// Tracker keeps per-sale view and conversion counters.
type Tracker interface {
	RecordView(ctx context.Context, saleID string) error
	RecordConversion(ctx context.Context, saleID string) error
	Counts(ctx context.Context, saleID string) (Counts, error)
}

type redisTracker struct {
	rdb *redis.Client
}

func NewRedisTracker(rdb *redis.Client) Tracker {
	return &redisTracker{rdb: rdb}
}

func (t *redisTracker) RecordView(ctx context.Context, saleID string) error {
	return t.rdb.Incr(ctx, rediskey.BuildFlashSaleViewsKey(saleID)).Err()
}

func (t *redisTracker) RecordConversion(ctx context.Context, saleID string) error {
	return t.rdb.Incr(ctx, rediskey.BuildFlashSaleConversionsKey(saleID)).Err()
}

func (t *redisTracker) Counts(ctx context.Context, saleID string) (Counts, error) {
	vals, err := t.rdb.MGet(ctx,
		rediskey.BuildFlashSaleViewsKey(saleID),
		rediskey.BuildFlashSaleConversionsKey(saleID),
	).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Counts{}, err
	}

	var c Counts
	if len(vals) == 2 {
		c.Views = toInt(vals[0])
		c.Conversions = toInt(vals[1])
	}
	return c, nil
}

func toInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
