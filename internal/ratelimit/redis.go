package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/martin/jobpilot/internal/types"
)

// RedisLimiter is a sliding-window limiter backed by a sorted set per
// (user, family) key, so the window is shared across processes. The
// prune-count-add sequence runs in one pipeline; counting is approximate
// under heavy concurrency but never allows unbounded bypass.
type RedisLimiter struct {
	client *redis.Client
	limits map[Family]Limit
	now    func() time.Time
}

// NewRedisLimiter builds a limiter over an existing Redis client. A nil
// limits map selects DefaultLimits.
func NewRedisLimiter(client *redis.Client, limits map[Family]Limit) *RedisLimiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &RedisLimiter{client: client, limits: limits, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID uuid.UUID, family Family) error {
	limit, ok := l.limits[family]
	if !ok || limit.Max <= 0 {
		return nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", userID, family)
	now := l.now()
	cutoff := now.Add(-limit.Window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key,
		"-inf", strconv.FormatInt(cutoff.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if countCmd.Val() >= int64(limit.Max) {
		retryAfter := limit.Window
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			oldestAt := time.Unix(0, int64(oldest[0].Score))
			retryAfter = oldestAt.Sub(cutoff)
		}
		return &types.RateLimitError{
			Family:     string(family),
			RetryAfter: retryAfter,
		}
	}

	add := l.client.TxPipeline()
	add.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	add.Expire(ctx, key, limit.Window+time.Second)
	if _, err := add.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record failed: %w", err)
	}
	return nil
}
