package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "parceldesk:delivery:"

// DedupFilter — idempotency-кэш по carrier delivery id. Повторная доставка
// того же события не должна второй раз дойти до сборки заказа.
type DedupFilter struct {
	c   *redis.Client
	ttl time.Duration
}

func NewDedupFilter(addr string, ttl time.Duration) *DedupFilter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupFilter{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// IsNew atomically claims the delivery id (SETNX). Returns true if this is
// the first time the id is seen within the retention window.
func (f *DedupFilter) IsNew(ctx context.Context, deliveryID string) (bool, error) {
	set, err := f.c.SetNX(ctx, dedupKeyPrefix+deliveryID, 1, f.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "dedup setnx")
	}
	return set, nil
}

// Forget releases a claimed delivery id. Called when processing failed after
// the claim, so the carrier's redelivery of the same event can still commit
// exactly once.
func (f *DedupFilter) Forget(ctx context.Context, deliveryID string) error {
	if err := f.c.Del(ctx, dedupKeyPrefix+deliveryID).Err(); err != nil {
		return errors.Wrap(err, "dedup del")
	}
	return nil
}
