package vipcode

import (
	"context"
	"errors"

	"creatorhub-platform/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// ViewRecorder counts lookups. Failures are reported to the caller, which
// logs them and carries on.
type ViewRecorder interface {
	RecordView(ctx context.Context, code *VipCode) error
	CodeViews(ctx context.Context, codeID string) (int64, error)
	CreatorViews(ctx context.Context, creatorID string) (int64, error)
}

type redisViews struct {
	rdb *redis.Client
}

func NewRedisViews(rdb *redis.Client) ViewRecorder {
	return &redisViews{rdb: rdb}
}

func (r *redisViews) RecordView(ctx context.Context, code *VipCode) error {
	pipe := r.rdb.TxPipeline()
	pipe.Incr(ctx, rediskey.BuildVipCodeViewsKey(code.ID))
	pipe.Incr(ctx, rediskey.BuildVipCodeCreatorViewsKey(code.CreatorID))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisViews) CodeViews(ctx context.Context, codeID string) (int64, error) {
	return r.get(ctx, rediskey.BuildVipCodeViewsKey(codeID))
}

func (r *redisViews) CreatorViews(ctx context.Context, creatorID string) (int64, error) {
	return r.get(ctx, rediskey.BuildVipCodeCreatorViewsKey(creatorID))
}

func (r *redisViews) get(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

type noopViews struct{}

func (noopViews) RecordView(context.Context, *VipCode) error { return nil }
func (noopViews) CodeViews(context.Context, string) (int64, error) { return 0, nil }
func (noopViews) CreatorViews(context.Context, string) (int64, error) { return 0, nil }
