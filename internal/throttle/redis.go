package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Limiter shared by every instance pointing at the same server.
type Redis struct {
	rdb    *redis.Client
	policy Policy
	prefix string
}

// NewRedisClient parses a redis:// URL and checks the server answers PING.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedis creates a Redis limiter for policy.
func NewRedis(rdb *redis.Client, policy Policy) *Redis {
	return &Redis{rdb: rdb, policy: policy, prefix: "authgate:login"}
}

func (r *Redis) failKey(key string) string { return r.prefix + ":fail:" + key }

func (r *Redis) lockKey(key string) string { return r.prefix + ":lock:" + key }

func (r *Redis) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, r.lockKey(key)).Result()
	if err != nil {
		return 0, err
	}
	// PTTL reports -2 for a missing key and -1 for a key without expiry.
	if ttl > 0 {
		return ttl, nil
	}
	return 0, nil
}

func (r *Redis) Fail(ctx context.Context, key string) (int, error) {
	failKey := r.failKey(key)

	count, err := r.rdb.Incr(ctx, failKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, failKey, r.policy.Window).Err(); err != nil {
			return 0, err
		}
	}

	if int(count) >= r.policy.MaxAttempts {
		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.lockKey(key), 1, r.policy.Lock)
			pipe.Del(ctx, failKey)
			return nil
		})
		if err != nil {
			return 0, err
		}
		return 0, nil
	}

	return remaining(r.policy, int(count)), nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.failKey(key), r.lockKey(key)).Err()
}
