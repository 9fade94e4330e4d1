package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 登录保护使用的 Redis 键空间。
const (
	loginRateKeyPrefix = "rate:login:"
	loginLockKeyPrefix = "lock:login:"
	loginFailKeyPrefix = "lock:login:fail:"
)

// loginRateKey 返回按 IP+邮箱、精确到小时的限流键。
func loginRateKey(ip, email string, now time.Time) string {
	return loginRateKeyPrefix + ip + ":" + email + ":" + now.UTC().Format("2006010215")
}

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// incrWithTTL 自增计数键，首次写入时设置过期时间。
func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
