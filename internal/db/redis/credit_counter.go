package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL 月度计数键的保留时长。跨月后旧键只剩审计价值，两个月后过期。
const counterTTL = 62 * 24 * time.Hour

// CreditCounter 月度额度计数器，INCR 原子自增。
type CreditCounter struct {
	redis *redis.Client
}

// NewCreditCounter 创建额度计数器
func NewCreditCounter(rdb *redis.Client) *CreditCounter {
	return &CreditCounter{redis: rdb}
}

// Incr 自增并返回当月用量。首次写入时设置过期。
func (c *CreditCounter) Incr(ctx context.Context, key string) (int64, error) {
	pipe := c.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Decr 回退一次自增（超限回滚或退款）。键不存在时不产生负计数。
func (c *CreditCounter) Decr(ctx context.Context, key string) (int64, error) {
	val, err := c.redis.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("decr %s: %w", key, err)
	}
	if val < 0 {
		c.redis.Set(ctx, key, 0, counterTTL)
		return 0, nil
	}
	return val, nil
}

// Get 读取当月用量。键不存在返回 0。
func (c *CreditCounter) Get(ctx context.Context, key string) (int64, error) {
	val, err := c.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}
